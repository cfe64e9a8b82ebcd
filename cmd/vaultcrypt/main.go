// Command vaultcrypt is a small front-end for the vault cryptographic
// engine: it creates key files, encrypts and decrypts individual files and
// translates encrypted names.
package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/absfs/vaultcrypt"
)

var log zerolog.Logger

func main() {
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:           "vaultcrypt",
		Short:         "Authenticated per-file encryption for client-side encrypted vaults",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newInitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newEncryptCmd())
	root.AddCommand(newDecryptCmd())
	root.AddCommand(newHeadCmd())
	root.AddCommand(newNameCmd())
	root.AddCommand(newPasswdCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// promptPassword reads a passphrase without echoing.
func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	return passphrase, nil
}

// unlockCryptor loads a key file and unwraps its master keys.
func unlockCryptor(keyFilePath string) (*vaultcrypt.Cryptor, error) {
	passphrase, err := promptPassword("Passphrase: ")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(keyFilePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cryptor, err := vaultcrypt.New()
	if err != nil {
		return nil, err
	}
	if err := cryptor.DecryptMasterKey(f, passphrase); err != nil {
		cryptor.Destroy()
		return nil, err
	}
	return cryptor, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <keyfile>",
		Short: "Generate fresh master keys and write a passphrase-protected key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := promptPassword("New passphrase: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if string(passphrase) != string(confirm) {
				return fmt.Errorf("passphrases do not match")
			}

			cryptor, err := vaultcrypt.New()
			if err != nil {
				return err
			}
			defer cryptor.Destroy()

			f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
			if err != nil {
				return err
			}
			if err := cryptor.EncryptMasterKey(f, passphrase); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			log.Info().Str("keyfile", args[0]).Msg("key file created")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <keyfile>",
		Short: "Verify the passphrase against a key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(args[0])
			if err != nil {
				if vaultcrypt.IsWrongPassword(err) {
					return fmt.Errorf("wrong passphrase")
				}
				return err
			}
			defer cryptor.Destroy()
			log.Info().Str("keyfile", args[0]).Msg("passphrase ok, master keys unwrapped")
			return nil
		},
	}
}

func newEncryptCmd() *cobra.Command {
	var keyFilePath string
	cmd := &cobra.Command{
		Use:   "encrypt <plaintext> <ciphertext>",
		Short: "Encrypt a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(keyFilePath)
			if err != nil {
				return err
			}
			defer cryptor.Destroy()

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := os.OpenFile(args[1], os.O_RDWR|os.O_CREATE, 0600)
			if err != nil {
				return err
			}
			n, err := cryptor.EncryptFile(in, out)
			if cerr := out.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			log.Info().Int64("plaintext_bytes", n).Str("output", args[1]).Msg("encrypted")
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFilePath, "keyfile", "k", "", "path to the key file (required)")
	cmd.MarkFlagRequired("keyfile")
	return cmd
}

func newDecryptCmd() *cobra.Command {
	var keyFilePath string
	var skipAuth bool
	cmd := &cobra.Command{
		Use:   "decrypt <ciphertext> <plaintext>",
		Short: "Decrypt a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(keyFilePath)
			if err != nil {
				return err
			}
			defer cryptor.Destroy()

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := os.OpenFile(args[1], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			n, err := cryptor.DecryptFile(in, out, !skipAuth)
			if cerr := out.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				if vaultcrypt.IsMacAuthError(err) {
					return fmt.Errorf("authentication failed, file may be tampered with: %w", err)
				}
				return err
			}
			log.Info().Int64("plaintext_bytes", n).Str("output", args[1]).Msg("decrypted")
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFilePath, "keyfile", "k", "", "path to the key file (required)")
	cmd.Flags().BoolVar(&skipAuth, "no-verify", false, "skip MAC verification (dangerous)")
	cmd.MarkFlagRequired("keyfile")
	return cmd
}

func newHeadCmd() *cobra.Command {
	var keyFilePath string
	var offset, length int64
	cmd := &cobra.Command{
		Use:   "head <ciphertext>",
		Short: "Decrypt a byte range to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(keyFilePath)
			if err != nil {
				return err
			}
			defer cryptor.Destroy()

			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			_, err = cryptor.DecryptRange(in, os.Stdout, offset, length, true)
			return err
		},
	}
	cmd.Flags().StringVarP(&keyFilePath, "keyfile", "k", "", "path to the key file (required)")
	cmd.Flags().Int64Var(&offset, "offset", 0, "plaintext offset to start at")
	cmd.Flags().Int64Var(&length, "length", 4096, "number of plaintext bytes to read")
	cmd.MarkFlagRequired("keyfile")
	return cmd
}

func newNameCmd() *cobra.Command {
	var keyFilePath string
	nameCmd := &cobra.Command{
		Use:   "name",
		Short: "Encrypt and decrypt filenames",
	}
	nameCmd.PersistentFlags().StringVarP(&keyFilePath, "keyfile", "k", "", "path to the key file (required)")
	nameCmd.MarkPersistentFlagRequired("keyfile")

	nameCmd.AddCommand(&cobra.Command{
		Use:   "encrypt <name>...",
		Short: "Encrypt cleartext filenames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(keyFilePath)
			if err != nil {
				return err
			}
			defer cryptor.Destroy()
			for _, name := range args {
				encrypted, err := cryptor.EncryptFilename(name)
				if err != nil {
					return err
				}
				fmt.Println(encrypted)
			}
			return nil
		},
	})
	nameCmd.AddCommand(&cobra.Command{
		Use:   "decrypt <ciphertext>...",
		Short: "Decrypt encrypted filenames",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cryptor, err := unlockCryptor(keyFilePath)
			if err != nil {
				return err
			}
			defer cryptor.Destroy()
			for _, name := range args {
				decrypted, err := cryptor.DecryptFilename(name)
				if err != nil {
					return err
				}
				fmt.Println(decrypted)
			}
			return nil
		},
	})
	return nameCmd
}

func newPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd <keyfile>",
		Short: "Change the passphrase of a key file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPassphrase, err := promptPassword("Current passphrase: ")
			if err != nil {
				return err
			}
			newPassphrase, err := promptPassword("New passphrase: ")
			if err != nil {
				return err
			}

			in, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := os.OpenFile(args[0], os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			err = vaultcrypt.ChangePassword(
				bytes.NewReader(in), out, oldPassphrase, newPassphrase, vaultcrypt.DefaultScryptParams())
			if cerr := out.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				if vaultcrypt.IsWrongPassword(err) {
					return fmt.Errorf("wrong passphrase")
				}
				return err
			}
			log.Info().Str("keyfile", args[0]).Msg("passphrase changed")
			return nil
		},
	}
}
