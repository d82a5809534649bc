package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CrackerCat/podofo/config"
	"github.com/CrackerCat/podofo/keys"
	"github.com/CrackerCat/podofo/logging"
	"github.com/CrackerCat/podofo/pdf/device"
	"github.com/CrackerCat/podofo/pdf/document"
	"github.com/CrackerCat/podofo/pdf/generic"
	"github.com/CrackerCat/podofo/sign/signers"
	"github.com/CrackerCat/podofo/sign/signing"
)

// fieldOptions carries the signature field flags shared by sign and
// digest.
type fieldOptions struct {
	fieldName  string
	rect       []float64
	reason     string
	location   string
	contact    string
	signerName string
}

func (o *fieldOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.fieldName, "field-name", "", "signature form field name")
	cmd.Flags().Float64SliceVar(&o.rect, "rect", nil, "visible widget rectangle: llx,lly,urx,ury")
	cmd.Flags().StringVar(&o.reason, "reason", "", "signing reason written into the signature dictionary")
	cmd.Flags().StringVar(&o.location, "location", "", "signing location")
	cmd.Flags().StringVar(&o.contact, "contact", "", "signer contact information")
	cmd.Flags().StringVar(&o.signerName, "signer-name", "", "human readable signer name")
}

// keyOptions carries the key material flags. They override the
// configuration file's key sets.
type keyOptions struct {
	keySet   string
	keyFile  string
	certFile string
	pfxFile  string
	pfxPass  string
	digest   string
}

func (o *keyOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.keySet, "key-set", "", "name of a key set from the configuration file")
	cmd.Flags().StringVar(&o.keyFile, "key", "", "path to a PEM or DER private key file")
	cmd.Flags().StringVar(&o.certFile, "cert", "", "path to the signing certificate file")
	cmd.Flags().StringVar(&o.pfxFile, "pfx", "", "path to a PKCS#12 container file")
	cmd.Flags().StringVar(&o.pfxPass, "pfx-password", "", "PKCS#12 container passphrase")
	cmd.Flags().StringVar(&o.digest, "digest", "", "digest algorithm: sha256, sha384, sha512, sha3-256, sha3-512")
}

func newSignCommand(ro *rootOptions) *cobra.Command {
	fo := &fieldOptions{}
	ko := &keyOptions{}
	var output string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Create and sign a PDF document in one pass.",
		Long: `Create a single-page PDF document carrying one signature field and
sign it synchronously with the configured key material.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, closer, err := buildSigner(ro, ko)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}

			doc, sig, err := buildDocument(ro, fo)
			if err != nil {
				return err
			}

			dev, err := device.CreateFileDevice(output)
			if err != nil {
				return err
			}
			defer dev.Close()

			if err := signing.SignDocument(doc, dev, sig, signer); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "signed document written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output PDF path")
	_ = cmd.MarkFlagRequired("output")
	fo.addFlags(cmd)
	ko.addFlags(cmd)

	return cmd
}

func newDigestCommand(ro *rootOptions) *cobra.Command {
	fo := &fieldOptions{}
	var (
		output string
		size   int
		digest string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Prepare a document for deferred signing and print its digest.",
		Long: `Create a single-page PDF document with a reserved signature
placeholder, save it, and print the digest an external service would
sign. The written file still carries the empty placeholder; it is meant
for inspecting the deferred signing flow, not for distribution.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := signers.DefaultExternalSignerOptions()
			if size > 0 {
				opts.EstimatedSize = size
			}
			if digest != "" {
				opts.Algorithm = signers.DigestAlgorithm(digest)
			}
			external, err := signers.NewExternalSigner(opts)
			if err != nil {
				return err
			}

			doc, sig, err := buildDocument(ro, fo)
			if err != nil {
				return err
			}

			dev, err := device.CreateFileDevice(output)
			if err != nil {
				return err
			}
			defer dev.Close()

			ctx := signing.NewSigningContext()
			id, err := ctx.AddSigner(sig, external)
			if err != nil {
				return err
			}

			session, err := ctx.StartSigning(doc, dev)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", session.Results().Intermediate[id])
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output PDF path")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().IntVar(&size, "reserve", 0, "bytes reserved for the deferred signature")
	cmd.Flags().StringVar(&digest, "digest", "", "digest algorithm: sha256, sha384, sha512, sha3-256, sha3-512")
	fo.addFlags(cmd)

	return cmd
}

// buildDocument assembles a one-page document with a signature field
// from the configuration defaults overridden by flags.
func buildDocument(ro *rootOptions, fo *fieldOptions) (*document.Document, *document.Signature, error) {
	field := ro.cfg.Field
	if fo.fieldName != "" {
		field.Name = fo.fieldName
	}
	if len(fo.rect) > 0 {
		field.Rect = fo.rect
	}
	if fo.reason != "" {
		field.Reason = fo.reason
	}
	if fo.location != "" {
		field.Location = fo.location
	}
	if fo.contact != "" {
		field.ContactInfo = fo.contact
	}
	if fo.signerName != "" {
		field.SignerName = fo.signerName
	}
	if field.Name == "" {
		field.Name = "Signature1"
	}
	if len(field.Rect) != 0 && len(field.Rect) != 4 {
		return nil, nil, errors.New("rect must have exactly four numbers")
	}

	doc := document.New()
	pageIndex := doc.AddPage(nil)

	var rect *generic.Rectangle
	if len(field.Rect) == 4 {
		rect = &generic.Rectangle{
			LLX: field.Rect[0], LLY: field.Rect[1],
			URX: field.Rect[2], URY: field.Rect[3],
		}
	}

	sig, err := doc.AddSignatureField(field.Name, pageIndex, rect)
	if err != nil {
		return nil, nil, err
	}
	if field.Reason != "" {
		sig.SetReason(field.Reason)
	}
	if field.Location != "" {
		sig.SetLocation(field.Location)
	}
	if field.ContactInfo != "" {
		sig.SetContactInfo(field.ContactInfo)
	}
	if field.SignerName != "" {
		sig.SetSignerName(field.SignerName)
	}
	return doc, sig, nil
}

// buildSigner resolves key material from flags or the configuration and
// returns the signer plus an optional cleanup function.
func buildSigner(ro *rootOptions, ko *keyOptions) (signers.Signer, func() error, error) {
	ks, err := resolveKeySet(ro, ko)
	if err != nil {
		return nil, nil, err
	}

	algorithm := signers.DigestAlgorithm(ks.DigestName())
	if ko.digest != "" {
		algorithm = signers.DigestAlgorithm(ko.digest)
	}

	switch {
	case ks.PemDer != nil:
		key, err := keys.LoadPrivateKeyFromPemDer(ks.PemDer.KeyFile)
		if err != nil {
			return nil, nil, err
		}
		cert, err := keys.LoadCertFromPemDer(ks.PemDer.CertFile)
		if err != nil {
			return nil, nil, err
		}
		logging.Logger().Debug("loaded signing certificate", "subject", cert.Subject.String())
		signer, err := signers.NewRawSigner(key, algorithm)
		return signer, nil, err

	case ks.PKCS12 != nil:
		key, bundle, err := keys.LoadPKCS12(ks.PKCS12.PFXFile, ks.PKCS12.PFXPassphrase)
		if err != nil {
			return nil, nil, err
		}
		logging.Logger().Debug("loaded signing certificate",
			"subject", bundle.Certificate.Subject.String(),
			"chain", len(bundle.CACerts))
		signer, err := signers.NewRawSigner(key, algorithm)
		return signer, nil, err

	case ks.PKCS11 != nil:
		cfg := ks.PKCS11
		session, err := signers.OpenPKCS11Session(cfg.ModulePath, cfg.SlotNo, cfg.TokenCriteria, cfg.UserPIN)
		if err != nil {
			return nil, nil, err
		}
		signer, err := signers.NewPKCS11Signer(session, algorithm)
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		keyID, _ := cfg.GetKeyID()
		certID, _ := cfg.GetCertID()
		signer.WithKeyLabel(cfg.KeyLabel).
			WithKeyID(keyID).
			WithCertLabel(cfg.CertLabel).
			WithCertID(certID)
		if err := signer.Load(); err != nil {
			session.Close()
			return nil, nil, err
		}
		return signer, session.Close, nil

	default:
		return nil, nil, errors.New("no key material configured; use --key-set or --key/--cert or --pfx")
	}
}

// resolveKeySet turns the key flags into a key set, preferring direct
// flags over the configuration file.
func resolveKeySet(ro *rootOptions, ko *keyOptions) (config.KeySetConfig, error) {
	switch {
	case ko.pfxFile != "":
		return config.KeySetConfig{
			PKCS12: &config.PKCS12Config{PFXFile: ko.pfxFile, PFXPassphrase: ko.pfxPass},
		}, nil
	case ko.keyFile != "" || ko.certFile != "":
		ks := config.KeySetConfig{
			PemDer: &config.PemDerConfig{KeyFile: ko.keyFile, CertFile: ko.certFile},
		}
		return ks, ks.PemDer.Validate()
	case ko.keySet != "":
		return ro.cfg.KeySet(ko.keySet)
	default:
		return config.KeySetConfig{}, nil
	}
}
