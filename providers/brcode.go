package providers

import (
	"fmt"
	"strings"
)

const gui = "br.gov.bcb.pix"

// BRCode is the EMV payload behind a PIX QR code ("copia e cola")
type BRCode struct {
	Key          string
	Description  string
	MerchantName string
	MerchantCity string
	TxId         string
	Amount       int64
	SingleUse    bool
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (b BRCode) String() string {
	var sb strings.Builder
	sb.WriteString(field("00", "01"))
	if b.SingleUse {
		sb.WriteString(field("01", "12"))
	}
	account := field("00", gui) + field("01", b.Key)
	if room := 99 - len(account) - 4; b.Description != "" && room > 0 {
		account += field("02", clip(b.Description, room))
	}
	sb.WriteString(field("26", account))
	sb.WriteString(field("52", "0000"))
	sb.WriteString(field("53", "986"))
	if b.Amount > 0 {
		sb.WriteString(field("54", AmountString(b.Amount)))
	}
	sb.WriteString(field("58", "BR"))
	sb.WriteString(field("59", clip(orDefault(b.MerchantName, "N"), 25)))
	sb.WriteString(field("60", clip(orDefault(b.MerchantCity, "SAO PAULO"), 15)))
	sb.WriteString(field("62", field("05", clip(orDefault(b.TxId, "***"), 25))))
	sb.WriteString("6304")
	payload := sb.String()
	return payload + fmt.Sprintf("%04X", crc16(payload))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// crc16 is CRC-16/CCITT-FALSE as required by EMV QR
func crc16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
