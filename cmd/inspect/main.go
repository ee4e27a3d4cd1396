// inspect 对单个 APK / dex 执行一次提取并输出 JSON 摘要
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/apkinfo"
)

func main() {
	rizinPath := flag.String("rizin", "", "path to the rizin executable (default: search PATH)")
	aaptPath := flag.String("aapt", "", "path to the aapt executable (default: search PATH)")
	verbose := flag.Bool("v", false, "enable debug logging")
	withStrings := flag.Bool("strings", false, "include string constants in the output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: inspect [flags] <sample.apk|classes.dex>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	if err := run(flag.Arg(0), *rizinPath, *aaptPath, *withStrings, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(samplePath, rizinPath, aaptPath string, withStrings bool, logger *logrus.Logger) error {
	ctx := context.Background()

	info, err := apkinfo.NewRizinApkinfo(samplePath, apkinfo.Options{
		RizinPath: rizinPath,
		AaptPath:  aaptPath,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer info.Close()

	summary := struct {
		File        string   `json:"file"`
		Permissions []string `json:"permissions"`
		Methods     int      `json:"method_count"`
		AndroidAPIs int      `json:"android_api_count"`
		Custom      int      `json:"custom_method_count"`
		Strings     []string `json:"strings,omitempty"`
		StringCount int      `json:"string_count"`
	}{File: samplePath}

	permissions, err := info.Permissions(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to read permissions")
	}
	summary.Permissions = permissions

	all, err := info.AllMethods(ctx)
	if err != nil {
		return err
	}
	summary.Methods = len(all)

	apis, err := info.AndroidAPIs(ctx)
	if err != nil {
		return err
	}
	summary.AndroidAPIs = len(apis)

	custom, err := info.CustomMethods(ctx)
	if err != nil {
		return err
	}
	summary.Custom = len(custom)

	strs, err := info.GetStrings(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to list strings")
	}
	summary.StringCount = len(strs)
	if withStrings {
		summary.Strings = strs
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}
