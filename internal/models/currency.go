package models

// MaxScale bounds the decimal places a wallet may keep. Balances are int64
// minor units, so scale 9 still holds over nine billion whole units.
const MaxScale int32 = 9

// Currency is a supported deposit currency. Scale is the number of decimal
// places balances are kept at.
type Currency struct {
	Symbol  string `yaml:"symbol"`
	Network string `yaml:"network"`
	Scale   int32  `yaml:"scale"`
}
