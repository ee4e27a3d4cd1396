package model

// BytecodeObject 一条已解析的 smali 指令
type BytecodeObject struct {
	Mnemonic  string   `json:"mnemonic"`
	Registers []string `json:"registers"`
	Parameter string   `json:"parameter"`
}

// Flatten 展开为 [mnemonic, registers..., parameter] 列表，用于证据输出
func (b *BytecodeObject) Flatten() []string {
	out := make([]string, 0, len(b.Registers)+2)
	out = append(out, b.Mnemonic)
	out = append(out, b.Registers...)
	out = append(out, b.Parameter)
	return out
}
