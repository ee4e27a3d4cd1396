package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMethodObject_Equal 测试方法身份由三元组决定，定位信息不参与比较
func TestMethodObject_Equal(t *testing.T) {
	base := &MethodObject{
		ClassName:  "Lcom/example/app/MainActivity;",
		Name:       "onCreate",
		Descriptor: "(Landroid/os/Bundle;)V",
		Cache:      &RizinCache{Address: 0x1000, DexIndex: 0},
	}

	sameIdentity := &MethodObject{
		ClassName:  "Lcom/example/app/MainActivity;",
		Name:       "onCreate",
		Descriptor: "(Landroid/os/Bundle;)V",
		Cache:      &RizinCache{Address: 0x2000, DexIndex: 1, IsImported: true},
	}

	differentName := &MethodObject{
		ClassName:  "Lcom/example/app/MainActivity;",
		Name:       "onDestroy",
		Descriptor: "(Landroid/os/Bundle;)V",
	}

	assert.True(t, base.Equal(sameIdentity))
	assert.Equal(t, base.Key(), sameIdentity.Key())
	assert.False(t, base.Equal(differentName))
	assert.False(t, base.Equal(nil))
}

// TestMethodObject_FullName 测试完整方法名格式
func TestMethodObject_FullName(t *testing.T) {
	method := &MethodObject{
		ClassName:  "Ljava/lang/String;",
		Name:       "concat",
		Descriptor: "(Ljava/lang/String;)Ljava/lang/String;",
	}

	assert.Equal(t,
		"Ljava/lang/String; concat (Ljava/lang/String;)Ljava/lang/String;",
		method.FullName())
}

// TestMethodObject_IsAndroidAPI 测试平台 API 包名前缀判定
func TestMethodObject_IsAndroidAPI(t *testing.T) {
	tests := []struct {
		className string
		expected  bool
	}{
		{"Landroid/telephony/TelephonyManager;", true},
		{"Ljava/lang/String;", true},
		{"Lcom/google/android/gms/common/api/Api;", true},
		{"Lorg/json/JSONObject;", true},
		{"Ldalvik/system/DexClassLoader;", true},
		{"Lcom/example/app/MainActivity;", false},
		{"Lorg/example/Helper;", false},
		{"Lcom/googleplay/Fake;", false},
		{"", false},
	}

	for _, tt := range tests {
		method := &MethodObject{ClassName: tt.className}
		assert.Equal(t, tt.expected, method.IsAndroidAPI(), "class %q", tt.className)
	}
}

// TestMethodSet_AddKeepsFirst 测试集合去重保留先加入的方法
func TestMethodSet_AddKeepsFirst(t *testing.T) {
	first := &MethodObject{
		ClassName:  "Lcom/example/App;",
		Name:       "run",
		Descriptor: "()V",
		Cache:      &RizinCache{Address: 0x100, DexIndex: 0},
	}
	duplicate := &MethodObject{
		ClassName:  "Lcom/example/App;",
		Name:       "run",
		Descriptor: "()V",
		Cache:      &RizinCache{Address: 0x200, DexIndex: 1},
	}

	set := make(MethodSet)
	set.Add(first)
	set.Add(duplicate)

	assert.Len(t, set, 1)
	assert.True(t, set.Contains(duplicate))
	assert.Same(t, first, set[first.Key()])
}

// TestMethodSet_SliceSorted 测试集合按完整方法名稳定输出
func TestMethodSet_SliceSorted(t *testing.T) {
	set := make(MethodSet)
	set.Add(&MethodObject{ClassName: "Lb/B;", Name: "m", Descriptor: "()V"})
	set.Add(&MethodObject{ClassName: "La/A;", Name: "m", Descriptor: "()V"})
	set.Add(&MethodObject{ClassName: "La/A;", Name: "a", Descriptor: "()V"})

	methods := set.Slice()
	assert.Len(t, methods, 3)
	assert.Equal(t, "La/A; a ()V", methods[0].FullName())
	assert.Equal(t, "La/A; m ()V", methods[1].FullName())
	assert.Equal(t, "Lb/B; m ()V", methods[2].FullName())
}

// TestBytecodeObject_Flatten 测试指令展开顺序
func TestBytecodeObject_Flatten(t *testing.T) {
	instruction := &BytecodeObject{
		Mnemonic:  "invoke-virtual",
		Registers: []string{"v1", "v2"},
		Parameter: "Ljava/lang/String->concat(Ljava/lang/String;)Ljava/lang/String;",
	}

	assert.Equal(t, []string{
		"invoke-virtual", "v1", "v2",
		"Ljava/lang/String->concat(Ljava/lang/String;)Ljava/lang/String;",
	}, instruction.Flatten())
}
