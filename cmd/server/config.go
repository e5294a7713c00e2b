package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"github.com/keithlinneman/atelier-web/internal/cfg"
)

func stderrf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// loadConfig fills conf from the dotenv file, the environment and SSM, in
// that order, without touching flags set on the command line.
func loadConfig(ctx context.Context, cmd *cobra.Command, validate bool) error {
	explicit := explicitFlags(cmd)

	envFile := conf.EnvFile
	if !explicit("env-file") {
		if p, ok := os.LookupEnv(cfg.EnvKey(EnvPrefix, "env-file")); ok {
			envFile = p
		}
	}
	if err := cfg.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}

	envSet := cfg.FillFromEnv(goFS, EnvPrefix, explicit, stderrf)

	if conf.SSMPath != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		skip := func(name string) bool { return explicit(name) || envSet[name] }
		n, err := cfg.FillFromSSM(ctx, ssm.NewFromConfig(awsCfg), goFS, conf.SSMPath, skip, stderrf)
		if err != nil {
			return err
		}
		stderrf("applied %d parameters from ssm path %s", n, conf.SSMPath)
	}

	if !validate {
		return nil
	}
	if err := cfg.Validate(conf); err != nil {
		return fmt.Errorf("config error:\n%w", err)
	}
	return nil
}
