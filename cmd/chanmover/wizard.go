package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chanmover/internal/config"

	"github.com/spf13/cobra"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: bot token → guild → hide role → journal → save config",
		Long:  "Guides you through the bot token, the guild to register commands in, the role hidden during moves and the journal. Writes config to the path used by --config or default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(os.Stdin, os.Stdout, resolveConfigPath())
		},
	}
}

func runWizard(in io.Reader, out io.Writer, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(in)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Token
	fmt.Fprintln(out, "\n--- Step 1: Bot token ---")
	fmt.Fprintf(out, "Paste the token or an env var (e.g. ${%s})", config.TokenEnv)
	tokenDef := "${" + config.TokenEnv + "}"
	if cfg.Discord.Token != "" {
		tokenDef = cfg.Discord.Token
	}
	tok, err := prompt(tokenDef)
	if err != nil {
		return err
	}
	cfg.Discord.Token = tok

	// Step 2: Guild
	fmt.Fprintln(out, "\n--- Step 2: Guild ---")
	fmt.Fprint(out, "Guild id for slash commands (empty registers them globally)")
	guild, err := prompt(cfg.Discord.GuildID)
	if err != nil {
		return err
	}
	cfg.Discord.GuildID = guild

	// Step 3: Hide role
	fmt.Fprintln(out, "\n--- Step 3: Hide role ---")
	fmt.Fprint(out, "Role denied view access to a destination while messages are copied")
	role, err := prompt(cfg.Discord.HideRoleName)
	if err != nil {
		return err
	}
	cfg.Discord.HideRoleName = role

	// Step 4: Journal
	fmt.Fprintln(out, "\n--- Step 4: Journal ---")
	fmt.Fprint(out, "Record every run in a local database? (y/n)")
	def := "y"
	if !cfg.Journal.Enabled {
		def = "n"
	}
	yn, err := prompt(def)
	if err != nil {
		return err
	}
	cfg.Journal.Enabled = strings.HasPrefix(strings.ToLower(yn), "y")
	if cfg.Journal.Enabled {
		fmt.Fprint(out, "Journal database path")
		p, err := prompt(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		cfg.Journal.DBPath = config.ExpandPath(p)
	}

	// Save
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfig saved to %s\n", cfgPath)
	fmt.Fprintln(out, "Next: run 'chanmover doctor', then 'chanmover run'.")
	return nil
}
