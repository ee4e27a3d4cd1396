package apkinfo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/descriptor"
	"github.com/haeter525/quark-engine/internal/model"
	"github.com/haeter525/quark-engine/internal/rizin"
)

var (
	// errNotMethod 符号不是函数或方法，静默跳过
	errNotMethod = errors.New("symbol is not a function or method")

	// errNoSignature 符号显示名中找不到参数签名
	errNoSignature = errors.New("symbol has no method signature")

	// errDamagedFlag flag 名称损坏，无法定位方法名
	errDamagedFlag = errors.New("damaged flag name")
)

var (
	signaturePattern  = regexp.MustCompile(`\(.*\).*`)
	returnTypePattern = regexp.MustCompile(`[A-Za-zL][A-Za-z0-9L/;\[\]$.]+ `)
	methodNamePattern = regexp.MustCompile(`_+[A-Za-z]+`)
)

// parseMethodFromSymbol 把一条 isj / is.j 符号记录还原为方法对象
// flag 名称是经过 rizin 改写的标识，需要剥离方法名后缀与 sym. / imp. 前缀
// 才能得到所属类；损坏或截断的记录按最大努力处理
func parseMethodFromSymbol(sym rizin.Symbol, dexIndex int, logger *logrus.Logger) (*model.MethodObject, error) {
	if sym.Type != "FUNC" && sym.Type != "METH" {
		return nil, errNotMethod
	}

	// -- 描述符 --
	fullMethodName := sym.Name
	rawSignature := signaturePattern.FindString(fullMethodName)
	if rawSignature == "" {
		return nil, fmt.Errorf("%w: %s", errNoSignature, fullMethodName)
	}

	if strings.HasSuffix(rawSignature, ")") {
		// 签名仍是 Java 源码语法，逐个转换参数与返回值
		argStr := rawSignature[1 : len(rawSignature)-1]

		var arguments []string
		for _, arg := range strings.Split(argStr, ", ") {
			arguments = append(arguments, descriptor.ConvertTypeSignature(arg))
		}

		returnType := returnTypePattern.FindString(fullMethodName)
		if returnType == "" {
			return nil, fmt.Errorf("%w: unresolved return type in %s", errNoSignature, fullMethodName)
		}
		returnType = strings.TrimSpace(returnType)

		rawSignature = "(" + strings.Join(arguments, " ") + ")" +
			descriptor.ConvertTypeSignature(returnType)
	}

	desc, err := descriptor.ToAndroguardFormat(rawSignature)
	if err != nil {
		return nil, err
	}

	// -- 方法名 --
	methodName := sym.RealName

	// -- 类名 --
	// 用转义后的方法名检测类名是否被截断
	escapedMethodName := descriptor.EscapeRizinChars(methodName)
	escapedMethodName = strings.TrimSuffix(escapedMethodName, "_")

	flagName := sym.FlagName

	// sym.imp.clone 不属于任何类
	if flagName == "sym.imp.clone" {
		return &model.MethodObject{
			ClassName:  "",
			Name:       "clone",
			Descriptor: "()Ljava/lang/Object;",
			Cache: &model.RizinCache{
				Address:    sym.VAddr,
				DexIndex:   dexIndex,
				IsImported: sym.IsImported,
			},
		}, nil
	}

	if !strings.Contains(flagName, escapedMethodName) {
		logger.WithField("flag", sym.FlagName).Warn("The class name may be truncated")
	}

	// 剥离 flag 末尾的方法名
	matches := methodNamePattern.FindAllString(flagName, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", errDamagedFlag, sym.FlagName)
	}
	last := matches[len(matches)-1]
	flagName = flagName[:strings.LastIndex(flagName, last)]

	// 剥离 sym. 与 imp. 前缀
	for strings.HasPrefix(flagName, "sym.") || strings.HasPrefix(flagName, "imp.") {
		flagName = flagName[4:]
	}

	className := descriptor.ConvertTypeSignature(flagName)

	return &model.MethodObject{
		ClassName:  className,
		Name:       methodName,
		Descriptor: desc,
		Cache: &model.RizinCache{
			Address:    sym.VAddr,
			DexIndex:   dexIndex,
			IsImported: sym.IsImported,
		},
	}, nil
}
