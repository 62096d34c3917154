package dashboard

import (
	"fmt"
	"math"
	"pixgate/models"
	"strconv"
	"strings"
)

const DateLayout = "2006-01-02 15:04"

// Badge is the label and color of a transaction status
type Badge struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

func StatusBadge(status models.TransactionStatus) Badge {
	switch status {
	case models.StatusCompleted:
		return Badge{Label: "Concluída", Color: "green"}
	case models.StatusProcessing:
		return Badge{Label: "Processando", Color: "yellow"}
	default:
		return Badge{Label: "Falhou", Color: "red"}
	}
}

// FormatBRL renders cents as Brazilian Real, 123456789 -> "R$ 1.234.567,89"
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, group(cents/100), cents%100)
}

// FormatCount renders an integer with dot thousands separators
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + group(-n)
	}
	return group(n)
}

func FormatPercent(v float64) string {
	return strconv.FormatFloat(round1(v), 'f', 1, 64) + "%"
}

// FormatChange renders a signed change with one decimal; zero is shown as "+0.0%"
func FormatChange(v float64) string {
	v = round1(v)
	if v >= 0 {
		return "+" + strconv.FormatFloat(math.Abs(v), 'f', 1, 64) + "%"
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

func round1(v float64) float64 {
	r := math.Round(v*10) / 10
	if r == 0 {
		return 0
	}
	return r
}

func group(n int64) string {
	digits := strconv.FormatInt(n, 10)
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	head := len(digits) % 3
	if head > 0 {
		sb.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}
