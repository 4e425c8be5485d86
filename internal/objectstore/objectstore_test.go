package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	putFn func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	keys  []string
	body  map[string]string
	ctype map[string]string
}

func newFakePutter() *fakePutter {
	return &fakePutter{body: map[string]string{}, ctype: map[string]string{}}
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putFn != nil {
		return f.putFn(ctx, in)
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	f.body[key] = string(data)
	f.ctype[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestResolveSource(t *testing.T) {
	tests := []struct {
		name string
		cfg  AWSConfig
		want CredentialSource
	}{
		{"profile wins", AWSConfig{Profile: "dev", AccessKeyID: "a", SecretAccessKey: "b", AssumeRoleARN: "arn"}, SourceProfile},
		{"static keys", AWSConfig{AccessKeyID: "a", SecretAccessKey: "b", AssumeRoleARN: "arn"}, SourceStatic},
		{"half a key pair falls through", AWSConfig{AccessKeyID: "a", AssumeRoleARN: "arn"}, SourceAssumeRole},
		{"default chain", AWSConfig{Region: "eu-west-1"}, SourceDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveSource(tt.cfg); got != tt.want {
				t.Errorf("ResolveSource() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadAWSConfig_Static(t *testing.T) {
	cfg := AWSConfig{Region: "us-east-1", AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret", SessionToken: "tok"}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDEXAMPLE" || creds.SessionToken != "tok" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
	if awsCfg.Region != "us-east-1" {
		t.Errorf("region = %s", awsCfg.Region)
	}
}

func TestUploadDir(t *testing.T) {
	base := t.TempDir()
	out := filepath.Join(base, "react")
	for name, content := range map[string]string{
		"index.faiss":   "vectors",
		"index.json":    "{}",
		"docs/0.md":     "# doc",
		"docs/sub/1.md": "# doc 1",
	} {
		p := filepath.Join(out, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	put := newFakePutter()
	n, err := NewUploader(put, "bucket", "outputs", nil).UploadDir(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("uploaded %d files, want 4", n)
	}

	slices.Sort(put.keys)
	want := []string{"outputs/react/docs/0.md", "outputs/react/docs/sub/1.md", "outputs/react/index.faiss", "outputs/react/index.json"}
	if !slices.Equal(put.keys, want) {
		t.Errorf("keys = %v, want %v", put.keys, want)
	}
	if put.body["outputs/react/index.json"] != "{}" {
		t.Errorf("body = %q", put.body["outputs/react/index.json"])
	}
	if put.ctype["outputs/react/index.json"] != "application/json" {
		t.Errorf("content type = %q", put.ctype["outputs/react/index.json"])
	}
}

func TestUploadFile_DefaultKey(t *testing.T) {
	p := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	put := newFakePutter()
	if err := NewUploader(put, "bucket", "", nil).UploadFile(context.Background(), p, ""); err != nil {
		t.Fatal(err)
	}
	if len(put.keys) != 1 || put.keys[0] != "report.txt" {
		t.Errorf("keys = %v", put.keys)
	}
}

func TestUploadFile_Errors(t *testing.T) {
	if err := NewUploader(newFakePutter(), "", "", nil).UploadFile(context.Background(), "x", ""); err == nil {
		t.Error("expected error for empty bucket")
	}

	p := filepath.Join(t.TempDir(), "a.md")
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	denied := errors.New("access denied")
	put := newFakePutter()
	put.putFn = func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error) { return nil, denied }

	if err := NewUploader(put, "bucket", "", nil).UploadFile(context.Background(), p, ""); !errors.Is(err, denied) {
		t.Errorf("expected access denied, got %v", err)
	}
}
