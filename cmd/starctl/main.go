package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/starchain-protocol/starchain/pkg/client"
	"github.com/starchain-protocol/starchain/pkg/wallet"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	cfgFile     string
	keyFile     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "starctl",
	Short: "StarChain registry CLI",
	Long: `starctl is the command-line interface for a StarChain registry.

It manages wallet keys, claims stars through signed ownership proofs,
and inspects the chain.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".starctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
		if keyFile == "" {
			keyFile = viper.GetString("key_file")
		}
		if keyFile == "" {
			home, _ := os.UserHomeDir()
			keyFile = filepath.Join(home, ".starctl", "wallet.key")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.starctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "", "wallet key file (default ~/.starctl/wallet.key)")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(starsCmd)
	rootCmd.AddCommand(versionCmd)
}

func apiClient() *client.Client {
	return client.New(registryURL)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new wallet keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keyFile); err == nil {
			return fmt.Errorf("key file %s already exists; remove it first to generate a new wallet", keyFile)
		}

		kp, err := wallet.New()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(keyFile), 0o700); err != nil {
			return fmt.Errorf("create key dir: %w", err)
		}
		if err := kp.Save(keyFile); err != nil {
			return err
		}

		fmt.Printf("wallet created\naddress: %s\nkey file: %s\n", kp.Address(), keyFile)
		return nil
	},
}

// ── claim ────────────────────────────────────────────────────────────────────

var claimStarJSON string

var claimCmd = &cobra.Command{
	Use:     "claim",
	Short:   "Claim a star: request a challenge, sign it, submit the proof",
	Example: `  starctl claim --star '{"dec":"68 52 56.9","ra":"16h 29m 1.0s","story":"Found it"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if claimStarJSON == "" {
			return fmt.Errorf("--star is required")
		}
		if !json.Valid([]byte(claimStarJSON)) {
			return fmt.Errorf("--star must be valid JSON")
		}

		kp, err := wallet.Load(keyFile)
		if err != nil {
			return fmt.Errorf("load wallet (run 'starctl keygen' first): %w", err)
		}

		ctx, cancel := cmdContext()
		defer cancel()

		c := apiClient()
		ch, err := c.RequestChallenge(ctx, kp.Address())
		if err != nil {
			return fmt.Errorf("request challenge: %w", err)
		}

		b, err := c.SubmitProof(ctx, client.ProofRequest{
			Address:   kp.Address(),
			Message:   ch.Message,
			Signature: kp.Sign(ch.Message),
			Star:      json.RawMessage(claimStarJSON),
		})
		if err != nil {
			return fmt.Errorf("submit proof: %w", err)
		}

		fmt.Printf("star registered at height %d\nhash: %s\n", b.Height, b.Hash)
		return nil
	},
}

func init() {
	claimCmd.Flags().StringVar(&claimStarJSON, "star", "", "star record to register, as JSON")
}

// ── status / validate ────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the chain height and tip hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := apiClient().Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("height: %d\ntip: %s\n", st.Height, st.TipHash)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run a full-chain integrity scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := apiClient().Validate(ctx)
		if err != nil {
			return err
		}
		if res.Valid {
			fmt.Println("chain is valid")
			return nil
		}
		for _, v := range res.Violations {
			fmt.Printf("height %d: %s\n", v.Height, v.Kind)
		}
		return fmt.Errorf("chain has %d integrity violations", len(res.Violations))
	},
}

// ── block / stars ────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block <height|hash>",
	Short: "Fetch a block by height or hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		c := apiClient()
		var b *client.Block
		var err error
		if height, convErr := strconv.Atoi(args[0]); convErr == nil {
			b, err = c.BlockByHeight(ctx, height)
		} else {
			b, err = c.BlockByHash(ctx, args[0])
		}
		if err != nil {
			return err
		}

		out, _ := json.MarshalIndent(b, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var starsCmd = &cobra.Command{
	Use:   "stars [address]",
	Short: "List stars owned by a wallet (defaults to your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := ""
		if len(args) == 1 {
			address = args[0]
		} else {
			kp, err := wallet.Load(keyFile)
			if err != nil {
				return fmt.Errorf("no address given and no wallet found: %w", err)
			}
			address = kp.Address()
		}

		ctx, cancel := cmdContext()
		defer cancel()

		stars, err := apiClient().StarsByAddress(ctx, address)
		if err != nil {
			return err
		}
		if len(stars) == 0 {
			fmt.Printf("no stars registered to %s\n", address)
			return nil
		}
		for i, s := range stars {
			fmt.Printf("%d: %s\n", i+1, string(s.Star))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the starctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("starctl", version)
	},
}
