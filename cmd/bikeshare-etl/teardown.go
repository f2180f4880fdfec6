package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	awsadapter "github.com/couchcryptid/bikeshare-etl/internal/adapter/aws"
	"github.com/couchcryptid/bikeshare-etl/internal/config"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete the RDS instance without a final snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		prov, err := newProvisioner(cfg, logger)
		if err != nil {
			return err
		}
		return prov.Delete(cmd.Context())
	},
}

const ipLookupTimeout = 10 * time.Second

func newProvisioner(cfg *config.Config, logger *slog.Logger) (*awsadapter.Provisioner, error) {
	return awsadapter.NewProvisioner(cfg.AWSRegion, awsadapter.InstanceSpec{
		Identifier:       cfg.RDSInstance,
		DBName:           cfg.PGDatabase,
		MasterUser:       cfg.PGUser,
		MasterPassword:   cfg.PGPassword,
		SecurityGroupIDs: cfg.SecurityGroupIDs,
		SubnetGroup:      cfg.SubnetGroup,
	}, awsadapter.NewIPifyResolver(ipLookupTimeout), logger)
}
