package privacy

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaskPhoneNumber hides all but the last four digits.
// "6282140044677" -> "*********4677"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return "+" + maskTail(phone[1:], 4)
	}
	return maskTail(phone, 4)
}

// MaskChatID masks the number part of a WhatsApp address and keeps the domain.
// "6282140044677@c.us" -> "*********4677@c.us"
func MaskChatID(chatID string) string {
	number, domain, found := strings.Cut(chatID, "@")
	if !found {
		return MaskPhoneNumber(chatID)
	}
	return maskTail(number, 4) + "@" + domain
}

// MaskTransportID keeps the last eight characters of a gateway message id
func MaskTransportID(id string) string {
	return maskTail(id, 8)
}

// MaskName keeps the first letter of each word.
// "Dina Pratiwi" -> "D*** P******"
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		words[i] = string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
	return strings.Join(words, " ")
}

// DescribeBody replaces a message body with its size
func DescribeBody(body string) string {
	return fmt.Sprintf("<%d chars>", len([]rune(body)))
}

// MaskFields returns a copy of fields with personal data masked
func MaskFields(fields logrus.Fields) logrus.Fields {
	if fields == nil {
		return nil
	}

	out := make(logrus.Fields, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		switch k {
		case "phone", "recipient", "to", "admin_phone":
			out[k] = MaskPhoneNumber(s)
		case "chat_id":
			out[k] = MaskChatID(s)
		case "transport_id", "message_id":
			out[k] = MaskTransportID(s)
		case "recipient_name", "name":
			out[k] = MaskName(s)
		case "body", "text":
			out[k] = DescribeBody(s)
		default:
			out[k] = v
		}
	}
	return out
}

func maskTail(s string, keep int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}
