package archive

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

var (
	t1 = time.Date(2025, 3, 1, 12, 0, 0, 123456000, time.UTC)
	t2 = time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC)
)

func readRows(t *testing.T, data []byte) []TimestampRow {
	t.Helper()
	rows, err := parquet.Read[TimestampRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("parquet.Read: %v", err)
	}
	return rows
}

func TestRowFromTime(t *testing.T) {
	local := t1.In(time.FixedZone("X", 3*3600))
	row := RowFromTime(local)

	if row.Year != 2025 || row.Month != 3 || row.Day != 1 {
		t.Fatalf("partition = %d-%d-%d", row.Year, row.Month, row.Day)
	}
	if !row.Time().Equal(t1) {
		t.Fatalf("Time() = %v, want %v", row.Time(), t1)
	}
	if row.RFC3339 != "2025-03-01T12:00:00.123456Z" {
		t.Fatalf("RFC3339 = %q", row.RFC3339)
	}
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	for _, codec := range []string{"snappy", "gzip", "zstd", "none", ""} {
		t.Run("codec_"+codec, func(t *testing.T) {
			w := NewParquetWriter(ParquetConfig{Compression: codec})

			data, err := w.Write([]TimestampRow{RowFromTime(t1), RowFromTime(t2)})
			if err != nil {
				t.Fatalf("Write: %v", err)
			}

			rows := readRows(t, data)
			if len(rows) != 2 || !rows[0].Time().Equal(t1) || !rows[1].Time().Equal(t2) {
				t.Fatalf("rows = %+v", rows)
			}
		})
	}
}

func TestParquetWriter_NoRows(t *testing.T) {
	_, err := NewParquetWriter(ParquetConfig{}).Write(nil)
	if !errors.Is(err, ErrNoRowsToWrite) {
		t.Fatalf("expected ErrNoRowsToWrite, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	id := uuid.MustParse("0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b")
	got := generateKey("time_entry", t2, id)
	want := "time_entry/year=2025/month=03/day=02/export_0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b.parquet"
	if got != want {
		t.Fatalf("generateKey() = %q, want %q", got, want)
	}
}

type fakeSource struct {
	rows []time.Time
	err  error
}

func (f *fakeSource) FindAll(context.Context) ([]time.Time, error) {
	return f.rows, f.err
}

type fakeObjectStore struct {
	uploads map[string][]byte
	err     error
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return nil
}

func (f *fakeObjectStore) GenerateKey(exportedAt time.Time) string {
	return generateKey("test", exportedAt, uuid.Nil)
}

func TestExporter_Export(t *testing.T) {
	src := &fakeSource{rows: []time.Time{t2, t1, t2}}
	obj := &fakeObjectStore{}
	e := NewExporter(src, NewParquetWriter(ParquetConfig{}), obj, nil)
	e.now = func() time.Time { return t2 }

	res, err := e.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Rows != 3 || res.Bytes == 0 || !strings.HasPrefix(res.Key, "test/year=2025/month=03/day=02/") {
		t.Fatalf("result = %+v", res)
	}

	rows := readRows(t, obj.uploads[res.Key])
	want := []time.Time{t1, t2, t2}
	if len(rows) != len(want) {
		t.Fatalf("archived %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if !rows[i].Time().Equal(want[i]) {
			t.Fatalf("row %d = %v, want %v", i, rows[i].Time(), want[i])
		}
	}
}

func TestExporter_EmptyStoreUploadsNothing(t *testing.T) {
	obj := &fakeObjectStore{}
	e := NewExporter(&fakeSource{}, NewParquetWriter(ParquetConfig{}), obj, nil)

	res, err := e.Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res != (Result{}) || len(obj.uploads) != 0 {
		t.Fatalf("result = %+v, uploads = %d", res, len(obj.uploads))
	}
}

func TestExporter_Errors(t *testing.T) {
	errRead := errors.New("read failed")
	errUpload := errors.New("upload failed")

	tests := []struct {
		name    string
		src     *fakeSource
		obj     *fakeObjectStore
		wantErr error
	}{
		{name: "read failure", src: &fakeSource{err: errRead}, obj: &fakeObjectStore{}, wantErr: errRead},
		{name: "upload failure", src: &fakeSource{rows: []time.Time{t1}}, obj: &fakeObjectStore{err: errUpload}, wantErr: errUpload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExporter(tt.src, NewParquetWriter(ParquetConfig{}), tt.obj, nil)
			if _, err := e.Export(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Export() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// fakeBucketServer answers HeadBucket and CreateBucket for a single bucket.
type fakeBucketServer struct {
	mu       sync.Mutex
	exists   bool
	requests []string
}

func (f *fakeBucketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodHead:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		f.exists = true
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBucketServer) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestS3Client(t *testing.T, srv *httptest.Server) *S3Client {
	t.Helper()
	client, err := NewS3Client(context.Background(), S3Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		Bucket:          "archive",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	}, nil)
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	return client
}

func TestS3Client_EnsureBucket(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		want   []string
	}{
		{name: "existing bucket", exists: true, want: []string{"HEAD /archive"}},
		{name: "missing bucket is created", exists: false, want: []string{"HEAD /archive", "PUT /archive"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBucketServer{exists: tt.exists}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			client := newTestS3Client(t, srv)
			if err := client.EnsureBucket(context.Background()); err != nil {
				t.Fatalf("EnsureBucket: %v", err)
			}

			got := fake.methods()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("requests = %v, want %v", got, tt.want)
			}
			if err := client.HealthCheck(context.Background()); err != nil {
				t.Fatalf("HealthCheck after EnsureBucket: %v", err)
			}
		})
	}
}

func TestS3Client_HealthCheckMissingBucket(t *testing.T) {
	srv := httptest.NewServer(&fakeBucketServer{})
	defer srv.Close()

	if err := newTestS3Client(t, srv).HealthCheck(context.Background()); err == nil {
		t.Fatal("expected an error for a missing bucket")
	}
}
