package utils

import "testing"

// TestNotionalQuote проверяет расчёт номинала в fixed-point
func TestNotionalQuote(t *testing.T) {
	tests := []struct {
		name      string
		qtyBase   int64
		price     int64
		baseScale int64
		want      int64
	}{
		{
			name:      "one coin at $50k",
			qtyBase:   1000, // 1 монета при BaseScale=1000
			price:     50_000_000_000,
			baseScale: 1000,
			want:      50_000_000_000,
		},
		{
			name:      "fraction of a coin",
			qtyBase:   10, // 0.01 монеты
			price:     50_000_000_000,
			baseScale: 1000,
			want:      500_000_000,
		},
		{
			name:      "zero quantity",
			qtyBase:   0,
			price:     50_000_000_000,
			baseScale: 1000,
			want:      0,
		},
		{
			name:      "zero price",
			qtyBase:   1000,
			price:     0,
			baseScale: 1000,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NotionalQuote(tt.qtyBase, tt.price, tt.baseScale)
			if got != tt.want {
				t.Errorf("NotionalQuote(%d, %d, %d) = %d, want %d",
					tt.qtyBase, tt.price, tt.baseScale, got, tt.want)
			}
		})
	}
}

// TestQuoteToBase проверяет конвертацию quote -> base с округлением вниз
func TestQuoteToBase(t *testing.T) {
	tests := []struct {
		name      string
		quote     int64
		price     int64
		baseScale int64
		want      int64
	}{
		{
			// Пример из коррекции дрейфа: $500 разницы при цене $50,000
			// даёт 10 base units (0.01 монеты)
			name:      "drift correction example",
			quote:     500_000_000,
			price:     50_000_000_000,
			baseScale: 1000,
			want:      10,
		},
		{
			name:      "rounds down to zero",
			quote:     10_000, // $0.01
			price:     50_000_000_000,
			baseScale: 1000,
			want:      0,
		},
		{
			name:      "non-positive price",
			quote:     500_000_000,
			price:     0,
			baseScale: 1000,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteToBase(tt.quote, tt.price, tt.baseScale)
			if got != tt.want {
				t.Errorf("QuoteToBase(%d, %d, %d) = %d, want %d",
					tt.quote, tt.price, tt.baseScale, got, tt.want)
			}
		})
	}
}

// TestDiffBps проверяет симметричность и определённость на нулях
func TestDiffBps(t *testing.T) {
	// Симметрия: DiffBps(a,b) == DiffBps(b,a)
	a, b := int64(50_000_000_000), int64(50_500_000_000)
	if DiffBps(a, b) != DiffBps(b, a) {
		t.Errorf("DiffBps is not symmetric: %d vs %d", DiffBps(a, b), DiffBps(b, a))
	}

	// 500/50500 в bps = 99 (округление вниз)
	if got := DiffBps(a, b); got != 99 {
		t.Errorf("DiffBps(%d, %d) = %d, want 99", a, b, got)
	}

	// Оба нулевые - 0, не деление на ноль
	if got := DiffBps(0, 0); got != 0 {
		t.Errorf("DiffBps(0, 0) = %d, want 0", got)
	}

	// Равные значения - 0
	if got := DiffBps(a, a); got != 0 {
		t.Errorf("DiffBps(a, a) = %d, want 0", got)
	}
}

// TestRatioBps проверяет расчёт отношений в bps
func TestRatioBps(t *testing.T) {
	// 5,000 / 100,000 = 5% = 500 bps
	if got := RatioBps(5_000_000_000, 100_000_000_000); got != 500 {
		t.Errorf("RatioBps = %d, want 500", got)
	}

	// Деление на ноль защищено
	if got := RatioBps(100, 0); got != 0 {
		t.Errorf("RatioBps(100, 0) = %d, want 0", got)
	}
}

// TestRoundDownToStep проверяет округление до лот-сайза
func TestRoundDownToStep(t *testing.T) {
	tests := []struct {
		value, step, want int64
	}{
		{1234, 100, 1200},
		{1234, 1, 1234},
		{99, 100, 0},
		{1234, 0, 1234}, // невалидный шаг - значение как есть
	}

	for _, tt := range tests {
		if got := RoundDownToStep(tt.value, tt.step); got != tt.want {
			t.Errorf("RoundDownToStep(%d, %d) = %d, want %d", tt.value, tt.step, got, tt.want)
		}
	}
}
