// Command connect-export writes the contact flows, flow modules and hours of
// operation of a Connect instance as a CloudFormation template.
//
// Usage:
//
//	connect-export --instance-id <id> --manifest target.json [--filter Name]... [--phone-mapping +6125550100=+6129990000]... [-o template.json|s3://bucket/key] [-f json|yaml]
//
// The manifest is the connect-manifest output for the instance the template
// will be deployed to. References to prompts, queues and resources left out
// of the template are re-pointed through it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/manifest"
	"github.com/jarrod-lowe/connect-custom-resources/internal/template"
	"github.com/spf13/cobra"
)

const defaultDescription = "Amazon Connect contact flows"

// S3Client reads manifests from and writes templates to S3.
type S3Client interface {
	manifest.ObjectGetter
	manifest.ObjectPutter
}

// Clients used to export a template (injectable for testing)
type Clients struct {
	Connect connectapi.FlowExporter
	STS     manifest.CallerIdentity
	S3      S3Client
}

type clientFactory func(ctx context.Context) (*Clients, error)

func awsClients(ctx context.Context) (*Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Clients{
		Connect: connect.NewFromConfig(cfg),
		STS:     sts.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
	}, nil
}

type options struct {
	instanceID   string
	manifest     string
	filters      []string
	phoneMapping map[string]string
	description  string
	output       string
	format       string
	pageSize     int32
}

func main() {
	if err := newRootCmd(awsClients).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(newClients clientFactory) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "connect-export",
		Short: "Export Amazon Connect flows as a CloudFormation template",
		Long: `connect-export reads contact flows, flow modules and hours of operation
from an Amazon Connect instance and writes them as a CloudFormation template
that deploys them to the instance described by the target manifest.

Export every flow whose name contains "Sales":

    connect-export --instance-id 0d5b1a2c-... --manifest target.json --filter Sales

Read the manifest from S3 and upload YAML:

    connect-export --instance-id 0d5b1a2c-... --manifest s3://bucket/target.json -f yaml -o s3://bucket/flows.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := newClients(cmd.Context())
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			return run(cmd.Context(), opts, clients, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.instanceID, "instance-id", "", "Source Connect instance id or ARN")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "Target manifest file or s3://bucket/key")
	cmd.Flags().StringSliceVar(&opts.filters, "filter", nil, "Export resources whose name contains this text (repeatable, default all)")
	cmd.Flags().StringToStringVar(&opts.phoneMapping, "phone-mapping", nil, "Replace a source phone number with a target one, as source=target")
	cmd.Flags().StringVar(&opts.description, "description", defaultDescription, "Template description")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout, or s3://bucket/key")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().Int32Var(&opts.pageSize, "page-size", manifest.DefaultPageSize, "Results requested per list call")
	_ = cmd.MarkFlagRequired("instance-id")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func run(ctx context.Context, opts options, clients *Clients, stdout io.Writer, logger *slog.Logger) error {
	format, err := manifest.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.pageSize < 1 || opts.pageSize > manifest.MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d, got %d", manifest.MaxPageSize, opts.pageSize)
	}

	target, err := manifest.Load(ctx, opts.manifest, clients.S3)
	if err != nil {
		return err
	}

	exporter := &template.Exporter{
		Connect:      clients.Connect,
		STS:          clients.STS,
		Target:       target,
		Filters:      opts.filters,
		PhoneNumbers: opts.phoneMapping,
		Description:  opts.description,
		PageSize:     opts.pageSize,
		Logger:       logger,
	}
	t, err := exporter.Export(ctx, opts.instanceID)
	if err != nil {
		return fmt.Errorf("failed to export template: %w", err)
	}

	data, err := template.Encode(t, format)
	if err != nil {
		return err
	}

	sink := &manifest.Sink{Stdout: stdout, S3: clients.S3}
	return sink.Write(ctx, opts.output, format, data)
}
