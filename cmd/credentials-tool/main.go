// Command credentials-tool manages the gateway's credentials file from
// the command line:
//
//	credentials-tool [-file PATH] [-passphrase SECRET] clear
//	credentials-tool [-file PATH] [-passphrase SECRET] remove <device-id>
//	credentials-tool [-file PATH] [-passphrase SECRET] set <device-id> password [<user>] <pass>
//	credentials-tool [-file PATH] [-passphrase SECRET] set <device-id> pin <pin>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/urmzd/homai-gateway/internal/beeeon"
	"github.com/urmzd/homai-gateway/internal/credentials"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file := flag.String("file", "credentials.properties", "Path to the credentials file")
	passphrase := flag.String("passphrase", "", "Passphrase deriving the encryption key")
	flag.Parse()

	if err := run(*file, *passphrase, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(file, passphrase string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command: clear, remove or set")
	}

	storage := credentials.NewFileStorage(file)
	storage.SetSaveDelay(-1) // a one-shot tool saves explicitly
	storage.Load()

	switch args[0] {
	case "clear":
		storage.Clear()

	case "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: remove <device-id>")
		}
		id, err := beeeon.ParseDeviceID(args[1])
		if err != nil {
			return err
		}
		storage.Remove(id)

	case "set":
		if err := actionSet(storage, passphrase, args[1:]); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unrecognized command: %s", args[0])
	}

	return storage.Save()
}

func actionSet(storage *credentials.FileStorage, passphrase string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing argument <device-id>")
	}
	id, err := beeeon.ParseDeviceID(args[0])
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("missing argument <type>")
	}

	params, err := credentials.DeriveParams()
	if err != nil {
		return err
	}
	cipher, err := credentials.NewCipher(passphrase, params)
	if err != nil {
		return err
	}

	switch args[1] {
	case "password":
		cred := credentials.NewPasswordCredentials(params)

		switch len(args) {
		case 3:
			if err := cred.SetUsername("", cipher); err != nil {
				return err
			}
			if err := cred.SetPassword(args[2], cipher); err != nil {
				return err
			}
		case 4:
			if err := cred.SetUsername(args[2], cipher); err != nil {
				return err
			}
			if err := cred.SetPassword(args[3], cipher); err != nil {
				return err
			}
		default:
			if len(args) < 3 {
				return fmt.Errorf("missing arguments <password> or <username> <password>")
			}
			return fmt.Errorf("too many arguments")
		}

		storage.InsertOrUpdate(id, cred)
		return nil

	case "pin":
		if len(args) < 3 {
			return fmt.Errorf("missing argument <pin>")
		}
		cred := credentials.NewPinCredentials(params)
		if err := cred.SetPin(args[2], cipher); err != nil {
			return err
		}
		storage.InsertOrUpdate(id, cred)
		return nil

	default:
		return fmt.Errorf("unrecognized credentials type: %s", args[1])
	}
}
