// Package validation содержит проверку денежных сумм, вводимых пользователем.
package validation

import (
	"errors"
	"strconv"
	"strings"
)

// MinDepositCents — минимальная сумма депозита: R$ 1,00.
const MinDepositCents int64 = 100

// ErrInvalidAmount возвращается для нечисловой или неположительной суммы.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrBelowMinimum возвращается для суммы меньше минимального депозита.
	ErrBelowMinimum = errors.New("amount below minimum")
)

// ParseDepositAmount разбирает введённую пользователем сумму в реалах
// ("10,00" или "10.00") и возвращает её в сентаво. Принимаются только
// цифры и один разделитель с одним или двумя знаками после него:
// экспоненты, знаки и прочий синтаксис чисел Go отклоняются.
func ParseDepositAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", ".")

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if !isDigits(intPart) {
		return 0, ErrInvalidAmount
	}
	if hasFrac && (len(fracPart) > 2 || !isDigits(fracPart)) {
		return 0, ErrInvalidAmount
	}

	reais, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	cents := reais * 100
	if hasFrac {
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		if len(fracPart) == 1 {
			frac *= 10
		}
		cents += frac
	}

	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	if cents < MinDepositCents {
		return 0, ErrBelowMinimum
	}
	return cents, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
