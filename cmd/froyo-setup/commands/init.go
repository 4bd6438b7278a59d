package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sshpkg "golang.org/x/crypto/ssh"
)

const exampleSetup = `{
  "_shared": {
    "note": "groups starting with an underscore are never selected automatically"
  },
  "hello": {
    "steps": ["print", "greet", "file"],
    "print": "hello %%[str.upper:${name|froyo}]",
    "greeting": "%%[froyo.shout:welcome]",
    "file": {
      "path": "${dir|/tmp}/froyo-hello.txt",
      "content": "written by froyo-setup at %%[time.now]"
    }
  },
  "remote": {
    "steps": ["ssh"],
    "ssh": {
      "host": "${host|localhost}",
      "user": "${user|root}",
      "private_key": %s,
      "command": "uname -a"
    }
  }
}
`

const exampleStepMap = `{
  "greet": { "action": "print", "config": "greeting" }
}
`

const exampleFormatters = `# Formatters defined here are merged over the built-in ones.
# Use them in setup values as %[froyo.shout:text].

def _shout(text, suffix = "!"):
    return text.upper() + suffix

froyo = struct(shout = _shout)
`

func newInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a setups directory",
		Long: `Create a setups directory holding an example setup, a stepmap override,
a Starlark formatter module and an ed25519 key pair for the ssh actions.

The directory defaults to --setups-dir. Existing files are kept unless --force
is given; an existing key pair is always kept.`,
		Example: `  # Scaffold ./setups and plan the example
  froyo-setup init
  froyo-setup plan example -g hello`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := setupsDir
			if len(args) > 0 {
				dir = args[0]
			}
			out := cmd.OutOrStdout()

			log.Debug().Str("dir", dir).Bool("force", force).Msg("Initializing setups directory")
			fmt.Fprintf(out, "Initializing setups directory %s\n\n", dir)

			keysDir := filepath.Join(dir, "keys")
			if err := os.MkdirAll(keysDir, 0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", keysDir, err)
			}
			fmt.Fprintf(out, "✓ Created directory: %s\n", keysDir)

			keyPath := filepath.Join(keysDir, "id_ed25519")
			keyRef, err := json.Marshal(keyPath)
			if err != nil {
				return err
			}

			files := []struct {
				name    string
				content string
			}{
				{"example.json", fmt.Sprintf(exampleSetup, keyRef)},
				{"stepmap.json", exampleStepMap},
				{"formatters.star", exampleFormatters},
			}
			for _, f := range files {
				if err := writeScaffold(out, filepath.Join(dir, f.name), f.content, force); err != nil {
					return err
				}
			}

			if err := generateKeyPair(out, keyPath); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n✅ Setups directory initialized successfully!\n\n")
			fmt.Fprintf(out, "Next steps:\n")
			fmt.Fprintf(out, "  1. Review the queue:\n")
			fmt.Fprintf(out, "     froyo-setup plan example --setups-dir %s -g hello\n\n", dir)
			fmt.Fprintf(out, "  2. Run it:\n")
			fmt.Fprintf(out, "     froyo-setup run example --setups-dir %s -g hello -p name=you\n", dir)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")

	return cmd
}

func writeScaffold(out io.Writer, path, content string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "✓ Already exists: %s\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(out, "✓ Created file: %s\n", path)
	return nil
}

// generateKeyPair writes an ed25519 key pair in OpenSSH format unless the
// private key already exists.
func generateKeyPair(out io.Writer, keyPath string) error {
	if _, err := os.Stat(keyPath); err == nil {
		fmt.Fprintf(out, "✓ SSH keypair already exists: %s\n", keyPath)
		return nil
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	privKeyBytes, err := sshpkg.MarshalPrivateKey(privKey, "froyo-setup")
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(privKeyBytes), 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("failed to create SSH public key: %w", err)
	}
	if err := os.WriteFile(keyPath+".pub", sshpkg.MarshalAuthorizedKey(sshPubKey), 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Fprintf(out, "✓ Generated SSH keypair: %s\n", keyPath)
	return nil
}
