package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/haasonsaas/echodesk/internal/auth"
	"github.com/haasonsaas/echodesk/internal/config"
)

func runConfigValidate(out io.Writer, configPath string) error {
	if configPath == "" {
		return config.ErrNoConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "%s: invalid\n", configPath)
			for _, issue := range verr.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
		}
		return err
	}
	fmt.Fprintf(out, "%s: ok (%d providers, %d triggers)\n", configPath, len(cfg.LLM.Providers), len(cfg.Proactive.Triggers))
	return nil
}

func runConfigSchema(out io.Writer) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, schema, "", "  "); err != nil {
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func runToken(out io.Writer, configPath, subject string, expiry time.Duration) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	svc := auth.NewJWTService(cfg.Server.JWTSecret, expiry)
	token, err := svc.Generate(auth.Principal{Subject: subject})
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			return fmt.Errorf("server.jwt_secret is not set")
		}
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
