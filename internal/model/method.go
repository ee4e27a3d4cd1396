package model

import (
	"fmt"
	"strings"
)

// RizinCache 方法在后端中的定位信息（地址、dex 序号、是否为导入符号）
// 仅用于重新查询后端，不参与方法身份比较
type RizinCache struct {
	Address    uint64
	DexIndex   int
	IsImported bool
}

// MethodObject 一个 dex 方法的完整描述
// 身份由 (ClassName, Name, Descriptor) 三元组决定，AccessFlags 与 Cache 不参与比较
type MethodObject struct {
	ClassName   string
	Name        string
	Descriptor  string
	AccessFlags []string
	Cache       *RizinCache
}

// MethodKey 方法身份三元组，可作为 map key
type MethodKey struct {
	ClassName  string
	Name       string
	Descriptor string
}

// Key 返回身份三元组
func (m *MethodObject) Key() MethodKey {
	return MethodKey{ClassName: m.ClassName, Name: m.Name, Descriptor: m.Descriptor}
}

// Equal 按身份三元组比较两个方法
func (m *MethodObject) Equal(other *MethodObject) bool {
	if other == nil {
		return false
	}
	return m.Key() == other.Key()
}

// FullName 完整方法名，格式为 "<class> <name> <descriptor>"
func (m *MethodObject) FullName() string {
	return m.String()
}

func (m *MethodObject) String() string {
	return fmt.Sprintf("%s %s %s", m.ClassName, m.Name, m.Descriptor)
}

// androidAPIPrefixes 平台 API 的包名前缀
// 参见 https://developer.android.com/reference/packages
var androidAPIPrefixes = []string{
	"Landroid/",
	"Lcom/google/android/",
	"Ldalvik/",
	"Ljava/",
	"Ljavax/",
	"Ljunit/",
	"Lorg/apache/",
	"Lorg/json/",
	"Lorg/w3c/",
	"Lorg/xml/",
	"Lorg/xmlpull/",
}

// IsAndroidAPI 判断方法是否属于 Android 平台 API
func (m *MethodObject) IsAndroidAPI() bool {
	for _, prefix := range androidAPIPrefixes {
		if strings.HasPrefix(m.ClassName, prefix) {
			return true
		}
	}
	return false
}
