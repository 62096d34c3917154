package models

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	digitsOnly   = regexp.MustCompile(`^\d+$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+55\d{10,11}$`)
	evpPattern   = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func (t PixKeyType) IsValid() bool {
	switch t {
	case PixKeyTypeCPF, PixKeyTypeCNPJ, PixKeyTypeEmail, PixKeyTypePhone, PixKeyTypeRandom, PixKeyTypeAccount:
		return true
	}
	return false
}

// ValidatePixKey checks the key syntax for its type; it says nothing about whether the key is registered
func ValidatePixKey(key string, keyType PixKeyType) error {
	if key == "" {
		return fmt.Errorf("pix key is empty")
	}
	switch keyType {
	case PixKeyTypeCPF:
		if len(key) != 11 || !digitsOnly.MatchString(key) || !checkCPF(key) {
			return fmt.Errorf("invalid cpf key")
		}
	case PixKeyTypeCNPJ:
		if len(key) != 14 || !digitsOnly.MatchString(key) || !checkCNPJ(key) {
			return fmt.Errorf("invalid cnpj key")
		}
	case PixKeyTypeEmail:
		if len(key) > 77 || !emailPattern.MatchString(key) {
			return fmt.Errorf("invalid email key")
		}
	case PixKeyTypePhone:
		if !phonePattern.MatchString(key) {
			return fmt.Errorf("invalid phone key, expected +55 followed by area code and number")
		}
	case PixKeyTypeRandom:
		if !evpPattern.MatchString(strings.ToLower(key)) {
			return fmt.Errorf("invalid random key")
		}
	case PixKeyTypeAccount:
	default:
		return fmt.Errorf("unknown pix key type %q", keyType)
	}
	return nil
}

func checkCPF(cpf string) bool {
	if strings.Count(cpf, cpf[:1]) == len(cpf) {
		return false
	}
	digit := func(n int) int {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cpf[i]-'0') * (n + 1 - i)
		}
		r := sum * 10 % 11
		if r == 10 {
			return 0
		}
		return r
	}
	return digit(9) == int(cpf[9]-'0') && digit(10) == int(cpf[10]-'0')
}

func checkCNPJ(cnpj string) bool {
	if strings.Count(cnpj, cnpj[:1]) == len(cnpj) {
		return false
	}
	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	digit := func(n int) int {
		sum := 0
		offset := len(weights) - n
		for i := 0; i < n; i++ {
			sum += int(cnpj[i]-'0') * weights[offset+i]
		}
		r := sum % 11
		if r < 2 {
			return 0
		}
		return 11 - r
	}
	return digit(12) == int(cnpj[12]-'0') && digit(13) == int(cnpj[13]-'0')
}
