// Package aws provisions the RDS PostgreSQL instance that receives the load
// and opens it to the caller's public address.
package aws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/rds"
	"github.com/aws/aws-sdk-go/service/rds/rdsiface"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
)

const (
	postgresPort = 5432

	// EC2 has no exported constant for this code.
	errCodeDuplicatePermission = "InvalidPermission.Duplicate"

	ingressDescription = "Local psql access"
)

// InstanceSpec names the instance and the settings that vary between
// accounts. Everything else about the instance is fixed.
type InstanceSpec struct {
	Identifier       string
	DBName           string
	MasterUser       string
	MasterPassword   string
	SecurityGroupIDs []string
	SubnetGroup      string
}

// IPResolver returns the caller's public IPv4 address.
type IPResolver interface {
	PublicIP(ctx context.Context) (string, error)
}

// Provisioner creates, inspects and deletes the RDS instance.
type Provisioner struct {
	rds    rdsiface.RDSAPI
	ec2    ec2iface.EC2API
	ip     IPResolver
	spec   InstanceSpec
	logger *slog.Logger
}

// NewProvisioner builds SDK clients for region using the default credential
// chain.
func NewProvisioner(region string, spec InstanceSpec, ip IPResolver, logger *slog.Logger) (*Provisioner, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return New(rds.New(sess), ec2.New(sess), ip, spec, logger), nil
}

// New creates a Provisioner over existing clients.
func New(rdsAPI rdsiface.RDSAPI, ec2API ec2iface.EC2API, ip IPResolver, spec InstanceSpec, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		rds:    rdsAPI,
		ec2:    ec2API,
		ip:     ip,
		spec:   spec,
		logger: logger,
	}
}

// Ensure makes the instance exist and accept connections from this host, then
// returns its endpoint.
func (p *Provisioner) Ensure(ctx context.Context) (domain.Endpoint, error) {
	if err := p.EnsureInstance(ctx); err != nil {
		return domain.Endpoint{}, err
	}
	if err := p.EnsureIngress(ctx); err != nil {
		return domain.Endpoint{}, err
	}
	return p.Endpoint(ctx)
}

// EnsureInstance requests the instance and blocks until it is available. An
// instance that already exists is not an error.
func (p *Provisioner) EnsureInstance(ctx context.Context) error {
	p.logger.Info("creating rds instance", "instance", p.spec.Identifier)

	_, err := p.rds.CreateDBInstanceWithContext(ctx, p.createInput())
	switch {
	case err == nil:
		p.logger.Info("rds instance creation initiated", "instance", p.spec.Identifier)
	case hasCode(err, rds.ErrCodeDBInstanceAlreadyExistsFault):
		p.logger.Info("rds instance already exists", "instance", p.spec.Identifier)
	default:
		return fmt.Errorf("create rds instance %s: %w", p.spec.Identifier, err)
	}

	err = p.rds.WaitUntilDBInstanceAvailableWithContext(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(p.spec.Identifier),
	})
	if err != nil {
		return fmt.Errorf("wait for rds instance %s: %w", p.spec.Identifier, err)
	}
	p.logger.Info("rds instance available", "instance", p.spec.Identifier)
	return nil
}

func (p *Provisioner) createInput() *rds.CreateDBInstanceInput {
	in := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier:       aws.String(p.spec.Identifier),
		DBName:                     aws.String(p.spec.DBName),
		DBInstanceClass:            aws.String("db.t4g.micro"),
		Engine:                     aws.String("postgres"),
		EngineVersion:              aws.String("17.6"),
		MasterUsername:             aws.String(p.spec.MasterUser),
		MasterUserPassword:         aws.String(p.spec.MasterPassword),
		AllocatedStorage:           aws.Int64(20),
		MaxAllocatedStorage:        aws.Int64(25),
		StorageType:                aws.String("gp2"),
		StorageEncrypted:           aws.Bool(true),
		BackupRetentionPeriod:      aws.Int64(1),
		PreferredBackupWindow:      aws.String("07:45-08:15"),
		PreferredMaintenanceWindow: aws.String("mon:05:44-mon:06:14"),
		MultiAZ:                    aws.Bool(false),
		PubliclyAccessible:         aws.Bool(true),
		AutoMinorVersionUpgrade:    aws.Bool(true),
		DBParameterGroupName:       aws.String("default.postgres17"),
		DeletionProtection:         aws.Bool(false),
		CopyTagsToSnapshot:         aws.Bool(true),
		NetworkType:                aws.String("IPV4"),
	}
	if len(p.spec.SecurityGroupIDs) > 0 {
		in.VpcSecurityGroupIds = aws.StringSlice(p.spec.SecurityGroupIDs)
	}
	if p.spec.SubnetGroup != "" {
		in.DBSubnetGroupName = aws.String(p.spec.SubnetGroup)
	}
	return in
}

// EnsureIngress allows TCP 5432 from the caller's public IP on the instance's
// first security group. An identical existing rule is not an error.
func (p *Provisioner) EnsureIngress(ctx context.Context) error {
	inst, err := p.describe(ctx)
	if err != nil {
		return err
	}
	if len(inst.VpcSecurityGroups) == 0 {
		return fmt.Errorf("rds instance %s has no vpc security group", p.spec.Identifier)
	}
	groupID := aws.StringValue(inst.VpcSecurityGroups[0].VpcSecurityGroupId)

	ip, err := p.ip.PublicIP(ctx)
	if err != nil {
		return fmt.Errorf("resolve public ip: %w", err)
	}
	cidr := ip + "/32"

	_, err = p.ec2.AuthorizeSecurityGroupIngressWithContext(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(groupID),
		IpPermissions: []*ec2.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int64(postgresPort),
			ToPort:     aws.Int64(postgresPort),
			IpRanges: []*ec2.IpRange{{
				CidrIp:      aws.String(cidr),
				Description: aws.String(ingressDescription),
			}},
		}},
	})
	switch {
	case err == nil:
		p.logger.Info("inbound rule added", "group", groupID, "cidr", cidr, "port", postgresPort)
	case hasCode(err, errCodeDuplicatePermission):
		p.logger.Info("inbound rule already exists", "group", groupID, "cidr", cidr)
	default:
		return fmt.Errorf("authorize ingress on %s: %w", groupID, err)
	}
	return nil
}

// Endpoint returns the address, port and database name of the instance.
func (p *Provisioner) Endpoint(ctx context.Context) (domain.Endpoint, error) {
	inst, err := p.describe(ctx)
	if err != nil {
		return domain.Endpoint{}, err
	}
	if inst.Endpoint == nil {
		return domain.Endpoint{}, fmt.Errorf("rds instance %s has no endpoint yet", p.spec.Identifier)
	}
	return domain.Endpoint{
		Host:     aws.StringValue(inst.Endpoint.Address),
		Port:     int(aws.Int64Value(inst.Endpoint.Port)),
		Database: aws.StringValue(inst.DBName),
	}, nil
}

// Delete removes the instance without a final snapshot and waits for it to go.
func (p *Provisioner) Delete(ctx context.Context) error {
	p.logger.Info("deleting rds instance", "instance", p.spec.Identifier)

	_, err := p.rds.DeleteDBInstanceWithContext(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier: aws.String(p.spec.Identifier),
		SkipFinalSnapshot:    aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("delete rds instance %s: %w", p.spec.Identifier, err)
	}

	err = p.rds.WaitUntilDBInstanceDeletedWithContext(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(p.spec.Identifier),
	})
	if err != nil {
		return fmt.Errorf("wait for rds instance %s deletion: %w", p.spec.Identifier, err)
	}
	p.logger.Info("rds instance deleted", "instance", p.spec.Identifier)
	return nil
}

func (p *Provisioner) describe(ctx context.Context) (*rds.DBInstance, error) {
	out, err := p.rds.DescribeDBInstancesWithContext(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(p.spec.Identifier),
	})
	if err != nil {
		return nil, fmt.Errorf("describe rds instance %s: %w", p.spec.Identifier, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("rds instance %s not found", p.spec.Identifier)
	}
	return out.DBInstances[0], nil
}

func hasCode(err error, code string) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == code
}
