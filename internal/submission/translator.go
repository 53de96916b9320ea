package submission

import "strings"

// Language selects a message catalog.
type Language string

const (
	English Language = "en"
	Chinese Language = "zh"
)

type entry struct {
	key  string
	text string
}

// Catalog entries are matched exactly first, then by substring in this order.
//
//nolint:gochecknoglobals // message catalogs
var catalogs = map[Language][]entry{
	Chinese: {
		{"Insufficient shares: available balance is less than the total ask amount.", "份额不足：可用余额小于卖出总量"},
		{"Insufficient collateral: available allowance is less than the total bid amount.", "抵押品不足：授权额度小于买入总量"},
		{"Price precision is 3. Max allowed is 2 decimal points", "价格精度错误：最多允许2位小数"},
		{"Order must have a value of at least 0.9 USD", "订单价值必须至少为 0.9 USD"},
		{"InvalidSignature", "签名无效，请重新连接钱包"},
		{"Neg risk adapter not approved by the owner", "NegRisk Adapter 未授权，请先授权"},
		{"Operator not approved", "合约未授权，请先在授权管理中授权"},
		{"User rejected the request", "用户拒绝了请求"},
		{"User denied transaction signature", "用户拒绝签名"},
	},
	English: {
		{"Insufficient shares: available balance is less than the total ask amount.", "Not enough shares: your balance is below the amount you are selling"},
		{"Insufficient collateral: available allowance is less than the total bid amount.", "Not enough collateral: your allowance is below the amount you are buying"},
		{"Price precision is 3. Max allowed is 2 decimal points", "Price has too many decimals: at most 2 are allowed"},
		{"Order must have a value of at least 0.9 USD", "Order value must be at least 0.9 USD"},
		{"InvalidSignature", "Invalid signature, reconnect the wallet"},
		{"Neg risk adapter not approved by the owner", "NegRisk adapter is not approved, approve it first"},
		{"Operator not approved", "Exchange contract is not approved, approve it first"},
		{"User rejected the request", "Request rejected by user"},
		{"User denied transaction signature", "Signature rejected by user"},
	},
}

//nolint:gochecknoglobals // message catalogs
var unknownError = map[Language]string{
	English: "unknown error",
	Chinese: "未知错误",
}

// Translator turns backend error descriptions into user-facing text.
type Translator struct {
	lang    Language
	entries []entry
	exact   map[string]string
}

// NewTranslator returns a translator for lang. Unknown languages fall back to English.
func NewTranslator(lang Language) *Translator {
	entries, ok := catalogs[lang]
	if !ok {
		lang = English
		entries = catalogs[English]
	}

	exact := make(map[string]string, len(entries))
	for _, e := range entries {
		exact[e.key] = e.text
	}

	return &Translator{lang: lang, entries: entries, exact: exact}
}

// Language returns the catalog in use.
func (t *Translator) Language() Language {
	return t.lang
}

// Translate returns the catalog text for msg: an exact match wins, then the first entry
// whose key msg contains. Unmatched messages are returned unchanged.
func (t *Translator) Translate(msg string) string {
	if msg == "" {
		return unknownError[t.lang]
	}

	if text, ok := t.exact[msg]; ok {
		return text
	}

	for _, e := range t.entries {
		if strings.Contains(msg, e.key) {
			return e.text
		}
	}

	return msg
}
