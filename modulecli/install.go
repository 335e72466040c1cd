// Package modulecli wires the module delivery pipeline's components
// into kingpin commands, in the same style as the teacher's cli package:
// one ConfigureXCommand per subcommand, building an input struct from
// flags and delegating to a plain XCommand function so the logic stays
// testable without kingpin in the loop.
package modulecli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/byteness/moduledelivery/audit"
	"github.com/byteness/moduledelivery/config"
	"github.com/byteness/moduledelivery/coordinator"
	"github.com/byteness/moduledelivery/diskspace"
	"github.com/byteness/moduledelivery/extractor"
	"github.com/byteness/moduledelivery/installer"
	"github.com/byteness/moduledelivery/integrity"
	"github.com/byteness/moduledelivery/logging"
	"github.com/byteness/moduledelivery/manifest"
	"github.com/byteness/moduledelivery/orchestrator"
	"github.com/byteness/moduledelivery/pinning"
	"github.com/byteness/moduledelivery/quarantine"
	"github.com/byteness/moduledelivery/transport"
)

// InstallCommandInput holds the install command's flags.
type InstallCommandInput struct {
	ManifestURL       string
	PublicKeyPath     string
	Root              string
	TmpDir            string
	Environment       string
	ModuleID          string
	PolicyPath        string
	LogSigningKeyPath string
}

// ConfigureInstallCommand registers `moduleinstall install` with app.
func ConfigureInstallCommand(app *kingpin.Application) {
	input := InstallCommandInput{}

	cmd := app.Command("install", "Fetch the signed manifest and install one module")

	cmd.Arg("module-id", "The module id to install").
		Required().
		StringVar(&input.ModuleID)

	cmd.Flag("manifest-url", "Manifest endpoint URL").
		Required().
		StringVar(&input.ManifestURL)

	cmd.Flag("public-key", "Path to the PEM-encoded RSA public key used to verify the manifest signature").
		Required().
		StringVar(&input.PublicKeyPath)

	cmd.Flag("root", "Install root (defaults to the current directory; the platform documents directory is not looked up)").
		StringVar(&input.Root)

	cmd.Flag("tmp-dir", "Scratch directory for per-attempt archives and staging").
		StringVar(&input.TmpDir)

	cmd.Flag("environment", "Current deployment environment, matched against the manifest").
		Default("production").
		StringVar(&input.Environment)

	cmd.Flag("policy", "Path to a YAML security-parameters override file").
		StringVar(&input.PolicyPath)

	cmd.Flag("log-signing-key", "Path to an HMAC-SHA256 key (32+ bytes) used to sign the security log; omit to write unsigned JSON lines").
		StringVar(&input.LogSigningKeyPath)

	cmd.Action(func(c *kingpin.ParseContext) error {
		err := InstallCommand(context.Background(), input)
		app.FatalIfError(err, "install")
		return nil
	})
}

// InstallCommand builds the full pipeline composition root and runs one
// module's install attempt end to end, printing each stage transition to
// stdout as it happens.
func InstallCommand(ctx context.Context, input InstallCommandInput) error {
	root := input.Root
	if root == "" {
		root = "."
	}
	tmpDir := input.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}

	params := config.Default()
	if input.PolicyPath != "" {
		data, err := os.ReadFile(input.PolicyPath)
		if err != nil {
			return fmt.Errorf("reading policy file: %w", err)
		}
		params, err = config.LoadYAML(data)
		if err != nil {
			return err
		}
	}
	if result := config.Validate(params, input.PolicyPath); !result.Valid {
		for _, issue := range result.Issues {
			fmt.Fprintf(os.Stderr, "policy issue at %s: %s\n", issue.Location, issue.Message)
		}
		return fmt.Errorf("invalid security parameters")
	}

	publicKeyPEM, err := os.ReadFile(input.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("reading public key: %w", err)
	}
	verifier, err := manifest.NewSignatureVerifier(publicKeyPEM)
	if err != nil {
		return err
	}

	logFile, sink, err := openAuditSink(root, input.LogSigningKeyPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	defer sink.Close()

	pinner := pinning.New(params.PinnedCertificateHashes, params.AllowInsecureLocalhost, sink)

	validator := manifest.NewValidator(verifier, sink, params)
	trans := transport.New(input.ManifestURL, params.DownloadTimeout, pinner)
	coord := coordinator.New(params)
	ext := extractor.New(params, sink)
	inst := installer.New(root, sink)
	integ := integrity.New(sink)
	quar := quarantine.New(root, sink)
	disk := diskspace.New()

	orch := orchestrator.New(trans, coord, validator, ext, inst, integ, quar, disk, sink, params, tmpDir)

	validated, err := orch.FetchAndValidateManifest(ctx, input.Environment)
	if err != nil {
		return err
	}

	var target *manifest.ModuleDescriptor
	for i := range validated.Modules {
		if validated.Modules[i].ID == input.ModuleID {
			target = &validated.Modules[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("module %q not found in manifest", input.ModuleID)
	}

	final, err := orch.Install(ctx, *target, func(stage orchestrator.Stage, message string) {
		if message != "" {
			fmt.Printf("[%s] %s\n", stage, message)
		} else {
			fmt.Printf("[%s]\n", stage)
		}
	})
	if err != nil {
		return err
	}

	fmt.Printf("installed %s at %s\n", input.ModuleID, final)
	return nil
}

// openAuditSink opens today's append-only security log under
// <root>/SecurityLogs (spec §3's InstallRoot layout) and wraps it in an
// audit.Sink. When signingKeyPath is non-empty, every entry is HMAC-signed
// via logging.SignedLogger instead of written as plain JSON, giving the
// log tamper evidence independent of the RSA manifest signature.
func openAuditSink(root, signingKeyPath string) (*os.File, *audit.Sink, error) {
	logDir := filepath.Join(root, "SecurityLogs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating SecurityLogs directory: %w", err)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("security-%s.log", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening security log: %w", err)
	}

	var logger logging.Logger
	if signingKeyPath != "" {
		key, err := os.ReadFile(signingKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading log signing key: %w", err)
		}
		sigConfig := &logging.SignatureConfig{KeyID: "security-log", SecretKey: key}
		if err := sigConfig.Validate(); err != nil {
			return nil, nil, fmt.Errorf("log signing key: %w", err)
		}
		logger = logging.NewSignedLogger(f, sigConfig)
	} else {
		logger = logging.NewJSONLogger(f)
	}
	return f, audit.NewSink(logger), nil
}
