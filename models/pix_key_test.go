package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePixKey(t *testing.T) {
	cases := []struct {
		key     string
		keyType PixKeyType
		valid   bool
	}{
		{"52998224725", PixKeyTypeCPF, true},
		{"52998224724", PixKeyTypeCPF, false},
		{"11111111111", PixKeyTypeCPF, false},
		{"5299822472", PixKeyTypeCPF, false},
		{"11222333000181", PixKeyTypeCNPJ, true},
		{"11222333000180", PixKeyTypeCNPJ, false},
		{"financeiro@loja.com.br", PixKeyTypeEmail, true},
		{"financeiro.loja.com.br", PixKeyTypeEmail, false},
		{"+5511987654321", PixKeyTypePhone, true},
		{"11987654321", PixKeyTypePhone, false},
		{"123e4567-e89b-12d3-a456-426614174000", PixKeyTypeRandom, true},
		{"not-a-uuid", PixKeyTypeRandom, false},
		{"", PixKeyTypeEmail, false},
		{"x", PixKeyType("iban"), false},
	}
	for _, c := range cases {
		err := ValidatePixKey(c.key, c.keyType)
		if c.valid {
			assert.NoError(t, err, "%s %s", c.keyType, c.key)
		} else {
			assert.Error(t, err, "%s %s", c.keyType, c.key)
		}
	}
}
