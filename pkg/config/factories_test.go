package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittodir/pkg/backup"
	"github.com/marmos91/dittodir/pkg/dn"
	"github.com/marmos91/dittodir/pkg/entry"
	"github.com/marmos91/dittodir/pkg/metrics"
	"github.com/marmos91/dittodir/pkg/store/dirtree"
	"github.com/marmos91/dittodir/pkg/store/singlefile"
)

func TestCreateStore_DirTree(t *testing.T) {
	dir := t.TempDir()
	cfg := &PartitionConfig{
		Suffix: "dc=example,dc=com",
		Store: StoreConfig{
			Type: "dirtree",
			DirTree: map[string]any{
				"path":        dir,
				"sync_writes": true,
			},
		},
	}

	st, err := CreateStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create dirtree store: %v", err)
	}

	ds, ok := st.(*dirtree.Store)
	if !ok {
		t.Fatalf("Expected *dirtree.Store, got %T", st)
	}
	if ds.Path() != dir {
		t.Errorf("Expected path %q, got %q", dir, ds.Path())
	}
	if !st.Suffix().Equal(dn.MustParse("dc=example,dc=com")) {
		t.Errorf("Expected suffix dc=example,dc=com, got %s", st.Suffix())
	}
}

func TestCreateStore_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userRoot.ldif")
	cfg := &PartitionConfig{
		Suffix: "o=acme",
		Store: StoreConfig{
			Type: "singlefile",
			SingleFile: map[string]any{
				"path":             path,
				"copy_buffer_size": "8192",
			},
		},
	}

	st, err := CreateStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create singlefile store: %v", err)
	}

	sf, ok := st.(*singlefile.Store)
	if !ok {
		t.Fatalf("Expected *singlefile.Store, got %T", st)
	}
	if sf.Path() != path {
		t.Errorf("Expected path %q, got %q", path, sf.Path())
	}
}

func TestCreateStore_MissingPath(t *testing.T) {
	for _, storeType := range []string{"dirtree", "singlefile"} {
		cfg := &PartitionConfig{
			Suffix: "dc=example,dc=com",
			Store: StoreConfig{
				Type:       storeType,
				DirTree:    map[string]any{},
				SingleFile: map[string]any{},
			},
		}

		_, err := CreateStore(cfg)
		if err == nil {
			t.Fatalf("Expected error for %s store without path", storeType)
		}
		if !strings.Contains(err.Error(), "required") {
			t.Errorf("Expected 'required' error, got: %v", err)
		}
	}
}

func TestCreateStore_InvalidCopyBuffer(t *testing.T) {
	cfg := &PartitionConfig{
		Suffix: "dc=example,dc=com",
		Store: StoreConfig{
			Type: "singlefile",
			SingleFile: map[string]any{
				"path":             filepath.Join(t.TempDir(), "p.ldif"),
				"copy_buffer_size": 16,
			},
		},
	}

	if _, err := CreateStore(cfg); err == nil {
		t.Fatal("Expected error for copy buffer below the minimum")
	}
}

func TestCreateStore_UnknownType(t *testing.T) {
	cfg := &PartitionConfig{
		Suffix: "dc=example,dc=com",
		Store:  StoreConfig{Type: "badger"},
	}

	_, err := CreateStore(cfg)
	if err == nil {
		t.Fatal("Expected error for unknown store type")
	}
	if !strings.Contains(err.Error(), "unknown store type") {
		t.Errorf("Expected 'unknown store type' error, got: %v", err)
	}
}

func TestCreateStore_InvalidSuffix(t *testing.T) {
	cfg := &PartitionConfig{
		Suffix: "dc=example,",
		Store: StoreConfig{
			Type:    "dirtree",
			DirTree: map[string]any{"path": t.TempDir()},
		},
	}

	if _, err := CreateStore(cfg); err == nil {
		t.Fatal("Expected error for malformed suffix")
	}
}

func TestCreatePartition(t *testing.T) {
	ctx := context.Background()
	cfg := GetDefaultConfig()
	cfg.Partition.ID = "acme"
	cfg.Partition.Suffix = "o=acme"
	cfg.Partition.Store.DirTree["path"] = t.TempDir()

	p, err := CreatePartition(&cfg.Partition, metrics.NewNoopPartitionMetrics())
	if err != nil {
		t.Fatalf("Failed to create partition: %v", err)
	}
	if p.ID() != "acme" {
		t.Errorf("Expected partition id 'acme', got %q", p.ID())
	}

	if err := p.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize partition: %v", err)
	}
	defer func() { _ = p.Close(ctx) }()

	suffix, err := p.Lookup(ctx, dn.MustParse("o=acme"))
	if err != nil {
		t.Fatalf("Expected suffix entry to be created: %v", err)
	}
	if !suffix.HasValue(entry.AttrObjectClass, "extensibleObject") {
		t.Errorf("Expected configured object classes on suffix, got %v", suffix.Get(entry.AttrObjectClass))
	}
	if !suffix.HasValue("o", "acme") {
		t.Error("Expected naming value on suffix entry")
	}
}

func TestCreatePartition_InvalidReplicaID(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Partition.ReplicaID = 5000
	cfg.Partition.Store.DirTree["path"] = t.TempDir()

	if _, err := CreatePartition(&cfg.Partition, nil); err == nil {
		t.Fatal("Expected error for replica id out of range")
	}
}

func TestCreateBackupTarget_File(t *testing.T) {
	dir := t.TempDir()
	cfg := &BackupConfig{
		Type: "file",
		File: map[string]any{
			"dir":       dir,
			"file_mode": 0640,
		},
	}

	target, err := CreateBackupTarget(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create file backup target: %v", err)
	}

	ft, ok := target.(*backup.FileTarget)
	if !ok {
		t.Fatalf("Expected *backup.FileTarget, got %T", target)
	}
	if ft.Dir != dir {
		t.Errorf("Expected dir %q, got %q", dir, ft.Dir)
	}
	if ft.FileMode != 0640 {
		t.Errorf("Expected file mode 0640, got %o", ft.FileMode)
	}
}

func TestCreateBackupTarget_FileMissingDir(t *testing.T) {
	cfg := &BackupConfig{Type: "file", File: map[string]any{}}

	if _, err := CreateBackupTarget(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for file target without dir")
	}
}

func TestCreateBackupTarget_S3(t *testing.T) {
	cfg := &BackupConfig{
		Type: "s3",
		S3: map[string]any{
			"region":            "us-east-1",
			"bucket":            "acme-backups",
			"key_prefix":        "ldap/",
			"endpoint":          "http://localhost:9000",
			"access_key_id":     "minio",
			"secret_access_key": "minio123",
		},
	}

	target, err := CreateBackupTarget(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create S3 backup target: %v", err)
	}
	if target.Type() != "s3" {
		t.Errorf("Expected target type 's3', got %q", target.Type())
	}
}

func TestCreateBackupTarget_S3MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		want    string
	}{
		{"NoBucket", map[string]any{"region": "us-east-1"}, "bucket is required"},
		{"NoRegion", map[string]any{"bucket": "acme-backups"}, "region is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateBackupTarget(context.Background(), &BackupConfig{Type: "s3", S3: tt.options})
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected %q error, got: %v", tt.want, err)
			}
		})
	}
}

func TestCreateBackupTarget_UnknownType(t *testing.T) {
	_, err := CreateBackupTarget(context.Background(), &BackupConfig{Type: "ftp"})
	if err == nil {
		t.Fatal("Expected error for unknown backup target type")
	}
	if !strings.Contains(err.Error(), "unknown backup target type") {
		t.Errorf("Expected 'unknown backup target type' error, got: %v", err)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()

	result := InitializeMetrics(cfg)
	if result.Server != nil {
		t.Error("Expected nil server when metrics are disabled")
	}
	if result.Partition == nil || result.Backup == nil {
		t.Fatal("Expected no-op collectors when metrics are disabled")
	}
}
