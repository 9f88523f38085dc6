package utils

// math.go - целочисленная fixed-point арифметика торгового ядра
//
// Назначение:
// Вспомогательные функции для денежных расчётов. Все функции чистые
// (pure functions) без побочных эффектов и без плавающей точки.
//
// Конвенция единиц:
// - quote units: int64, минимальные единицы котируемой валюты
//   (QuoteScale единиц на 1 USD, по умолчанию 10^6)
// - base units: int64, минимальные единицы базового актива
//   (BaseScale единиц на 1 монету, по умолчанию 10^3)
// - цены: quote units за ОДНУ монету
// - отношения: базисные пункты (bps, 1/10000)
//
// Округление всегда вниз (truncation): занизить объём безопасно,
// завысить - значит потратить деньги, которых нет.

// BpsDenominator - знаменатель базисных пунктов
const BpsDenominator int64 = 10000

// NotionalQuote возвращает номинал позиции в quote units.
//
// notional = qty * price / baseScale
//
// Пример (QuoteScale=10^6, BaseScale=10^3):
//   NotionalQuote(1000, 50_000_000_000, 1000) = 50_000_000_000
//   (1 монета по $50,000 = $50,000)
func NotionalQuote(qtyBase, price, baseScale int64) int64 {
	if baseScale <= 0 || qtyBase <= 0 || price <= 0 {
		return 0
	}
	return qtyBase * price / baseScale
}

// QuoteToBase конвертирует сумму в quote units в количество base units
// по заданной цене. Округление вниз.
func QuoteToBase(quote, price, baseScale int64) int64 {
	if price <= 0 || quote <= 0 || baseScale <= 0 {
		return 0
	}
	return quote * baseScale / price
}

// RatioBps возвращает отношение part/whole в базисных пунктах.
// whole <= 0 даёт 0 (вызывающий обязан проверить деление на ноль заранее,
// но тихий 0 безопаснее паники в горячем пути).
func RatioBps(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return part * BpsDenominator / whole
}

// DiffBps возвращает |a-b| относительно большего из двух значений в bps.
// Оба нулевые - расхождение 0 по определению, не NaN.
func DiffBps(a, b int64) int64 {
	larger := a
	smaller := b
	if b > larger {
		larger = b
		smaller = a
	}
	if larger <= 0 {
		return 0
	}
	return (larger - smaller) * BpsDenominator / larger
}

// ApplyBps возвращает value * bps / 10000. Для порогов и множителей.
func ApplyBps(value, bps int64) int64 {
	return value * bps / BpsDenominator
}

// RoundDownToStep округляет value ВНИЗ до ближайшего кратного step.
// Используется для округления объёма ордера до лот-сайза биржи.
// step <= 0 возвращает исходное значение.
func RoundDownToStep(value, step int64) int64 {
	if step <= 0 {
		return value
	}
	return value / step * step
}

// MinInt64 возвращает меньшее из двух значений
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// AbsInt64 возвращает модуль значения
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
