package main

import (
	"fmt"
	"time"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/server"
	"github.com/spf13/cobra"
)

var (
	tokenOwner      string
	tokenExpiration time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token for an owner",
	Long:  `Sign a bearer token with JWT_SECRET. The token's subject is the owner ID the API scopes jobs to.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "Owner ID to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenExpiration, "expiration", 0, "Token lifetime (overrides JWT_EXPIRATION)")
	_ = tokenCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	jwtCfg, err := cfg.JWT()
	if err != nil {
		return err
	}
	if jwtCfg == nil {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if tokenExpiration > 0 {
		if jwtCfg, err = config.NewJWTConfig(jwtCfg.Secret, tokenExpiration); err != nil {
			return err
		}
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenOwner)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
