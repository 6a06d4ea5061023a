package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-video-bot/internal/extractor"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/models"
	"go-video-bot/internal/scrape"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExtractor is a testify mock of extractor.Extractor.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Resolve(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error) {
	args := m.Called(ctx, url, opts)
	info, _ := args.Get(0).(*extractor.Info)
	return info, args.Error(1)
}

func (m *MockExtractor) Transfer(ctx context.Context, url string, opts extractor.Options) error {
	args := m.Called(ctx, url, opts)
	return args.Error(0)
}

// writeOutput returns a Run hook that creates the transfer output with size bytes.
func writeOutput(t *testing.T, size int) func(mock.Arguments) {
	return func(args mock.Arguments) {
		opts := args.Get(2).(extractor.Options)
		path := strings.Replace(opts.OutputTemplate, "%(ext)s", "mp4", 1)
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	}
}

func newTestOrchestrator(t *testing.T, ext extractor.Extractor, fallbacks ...MetadataFallback) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	o := New(Options{
		DownloadDir:      dir,
		MaxFileSizeBytes: 50 * 1024 * 1024,
		MaxDuration:      30 * time.Minute,
		TitleMaxLen:      50,
	}, ext, fallbacks...)
	o.now = func() time.Time { return time.Unix(1700000000, 0) }
	return o, dir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		tier models.QualityTier
		want string
	}{
		{models.QualityBest, FormatBest},
		{models.QualityMedium, FormatMedium},
		{models.QualityLow, FormatLow},
		{models.QualityTier("ultra"), FormatBest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSelector(tt.tier), "tier %q", tt.tier)
	}
	assert.Contains(t, FormatMedium, "height<=720")
	assert.Contains(t, FormatLow, "height<=480")
}

func TestDownloadSuccess(t *testing.T) {
	ext := new(MockExtractor)
	o, dir := newTestOrchestrator(t, ext)
	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	ext.On("Resolve", mock.Anything, url, mock.Anything).
		Return(&extractor.Info{Title: strings.Repeat("t", 80), Duration: 120, Uploader: "channel"}, nil)
	ext.On("Transfer", mock.Anything, url, mock.MatchedBy(func(opts extractor.Options) bool {
		return opts.Format == FormatMedium && strings.HasPrefix(filepath.Base(opts.OutputTemplate), "video_dQw4w9WgXcQ_")
	})).Run(writeOutput(t, 1024)).Return(nil).Once()

	result := o.Download(context.Background(), url, models.QualityMedium)

	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
	s := result.Success
	assert.Equal(t, filepath.Join(dir, "video_dQw4w9WgXcQ_1700000000000000000.mp4"), s.FilePath)
	assert.Len(t, []rune(s.Title), 50)
	assert.Equal(t, 120, s.DurationSeconds)
	assert.Equal(t, int64(1024), s.SizeBytes)
	assert.Equal(t, "channel", s.UploaderLabel)
	assert.NotEmpty(t, s.PlatformLabel)
	ext.AssertExpectations(t)
}

func TestDownloadDirWithPatternCharacters(t *testing.T) {
	ext := new(MockExtractor)
	dir := filepath.Join(t.TempDir(), "[bot]*?")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	o := New(Options{
		DownloadDir:      dir,
		MaxFileSizeBytes: 50 * 1024 * 1024,
		MaxDuration:      30 * time.Minute,
	}, ext)
	o.now = func() time.Time { return time.Unix(1700000000, 0) }
	url := "https://youtu.be/dQw4w9WgXcQ"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 5}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Run(writeOutput(t, 64)).Return(nil).Once()

	result := o.Download(context.Background(), url, models.QualityBest)

	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
	assert.Equal(t, filepath.Join(dir, "video_dQw4w9WgXcQ_1700000000000000000.mp4"), result.Success.FilePath)
}

func TestFindOutput(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    string
		wantErr error
	}{
		{name: "single file", files: []string{"video_a_1.mp4"}, want: "video_a_1.mp4"},
		{name: "skips partial", files: []string{"video_a_1.mp4.part", "video_a_1.webm"}, want: "video_a_1.webm"},
		{name: "ignores other prefixes", files: []string{"video_a_10.mp4", "video_b_1.mp4"}, wantErr: ErrNoOutputFile},
		{name: "only partial", files: []string{"video_a_1.mp4.ytdl"}, wantErr: ErrNoOutputFile},
		{name: "empty", wantErr: ErrNoOutputFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "dl[1]")
			require.NoError(t, os.MkdirAll(dir, 0o755))
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
			}

			got, err := findOutput(dir, "video_a_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}

func TestFindOutputMissingDir(t *testing.T) {
	_, err := findOutput(filepath.Join(t.TempDir(), "gone"), "video_a_1")
	assert.ErrorIs(t, err, ErrFileSystem)
}

func TestDownloadDefaultsTitleAndUploader(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://example.org/clip.mp4"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 9.6}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Run(writeOutput(t, 10)).Return(nil)

	result := o.Download(context.Background(), url, models.QualityBest)
	require.True(t, result.OK())
	assert.Equal(t, messages.DefaultTitle, result.Success.Title)
	assert.Equal(t, messages.DefaultUploader, result.Success.UploaderLabel)
	assert.Equal(t, 10, result.Success.DurationSeconds)
}

func TestDownloadDurationCeilingSkipsTransfer(t *testing.T) {
	ext := new(MockExtractor)
	o, dir := newTestOrchestrator(t, ext)
	url := "https://youtu.be/longvideo1"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Title: "long", Duration: 3600}, nil)

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonDurationExceeded, result.Failure.Reason)
	assert.Contains(t, result.Failure.Message, "60")
	ext.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, dirEntries(t, dir))
}

func TestDownloadEmptyFile(t *testing.T) {
	ext := new(MockExtractor)
	o, dir := newTestOrchestrator(t, ext)
	url := "https://youtu.be/emptyfile1"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Run(writeOutput(t, 0)).Return(nil)

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonEmptyFile, result.Failure.Reason)
	assert.Equal(t, messages.EmptyFile, result.Failure.Message)
	assert.Empty(t, dirEntries(t, dir), "empty output must be deleted")
}

func TestDownloadTooLarge(t *testing.T) {
	ext := new(MockExtractor)
	o, dir := newTestOrchestrator(t, ext)
	o.opts.MaxFileSizeBytes = 1024 * 1024
	url := "https://youtu.be/bigfile001"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Run(writeOutput(t, 3*1024*1024)).Return(nil)

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonTooLarge, result.Failure.Reason)
	assert.Contains(t, result.Failure.Message, "3.0 MB")
	assert.Empty(t, dirEntries(t, dir), "oversized output must be deleted")
}

func TestDownloadFileNotFound(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://youtu.be/nofile0001"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Return(nil)

	result := o.Download(context.Background(), url, models.QualityBest)
	require.False(t, result.OK())
	assert.Equal(t, models.ReasonFileNotFound, result.Failure.Reason)
}

func TestDownloadIgnoresPartialFiles(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://youtu.be/partial001"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Run(func(args mock.Arguments) {
		opts := args.Get(2).(extractor.Options)
		path := strings.Replace(opts.OutputTemplate, "%(ext)s", "mp4.part", 1)
		require.NoError(t, os.WriteFile(path, []byte("half"), 0o644))
	}).Return(nil)

	result := o.Download(context.Background(), url, models.QualityBest)
	require.False(t, result.OK())
	assert.Equal(t, models.ReasonFileNotFound, result.Failure.Reason)
}

func TestDownloadEmptyPayloadRetriesWithBest(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://youtu.be/retry00001"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.MatchedBy(func(opts extractor.Options) bool {
		return opts.Format == FormatLow
	})).Return(errors.New("ERROR: The downloaded file is empty")).Once()
	ext.On("Transfer", mock.Anything, url, mock.MatchedBy(func(opts extractor.Options) bool {
		return opts.Format == retryFormat
	})).Run(writeOutput(t, 2048)).Return(nil).Once()

	result := o.Download(context.Background(), url, models.QualityLow)

	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
	ext.AssertNumberOfCalls(t, "Transfer", 2)
}

func TestDownloadEmptyPayloadTwice(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://youtu.be/retry00002"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Return(errors.New("The downloaded file is empty"))

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonTransferFailed, result.Failure.Reason)
	assert.Equal(t, messages.EmptyTransfer, result.Failure.Message)
	ext.AssertNumberOfCalls(t, "Transfer", 2)
}

func TestDownloadTransferFailureIsTruncated(t *testing.T) {
	ext := new(MockExtractor)
	o, _ := newTestOrchestrator(t, ext)
	url := "https://youtu.be/fails00001"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Duration: 10}, nil)
	ext.On("Transfer", mock.Anything, url, mock.Anything).Return(errors.New(strings.Repeat("x", 500))).Once()

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonTransferFailed, result.Failure.Reason)
	assert.Equal(t, messages.GenericError(errors.New(strings.Repeat("x", 100))), result.Failure.Message)
	ext.AssertNumberOfCalls(t, "Transfer", 1)
}

func TestDownloadMetadataFailureNonInstagram(t *testing.T) {
	ext := new(MockExtractor)
	fb := new(MockFallback)
	o, _ := newTestOrchestrator(t, ext, fb)
	url := "https://www.tiktok.com/@u/video/1"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(nil, errors.New("Unsupported URL"))
	fb.On("Applies", models.PlatformTikTok).Return(false)

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonMetadataUnresolvable, result.Failure.Reason)
	assert.Contains(t, result.Failure.Message, "Unsupported URL")
	fb.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	ext.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
}

// MockFallback is a testify mock of MetadataFallback.
type MockFallback struct {
	mock.Mock
}

func (m *MockFallback) Applies(p models.Platform) bool {
	return m.Called(p).Bool(0)
}

func (m *MockFallback) Resolve(ctx context.Context, rawURL string, resolve scrape.ResolveFunc) (*extractor.Info, string, error) {
	args := m.Called(ctx, rawURL, resolve)
	info, _ := args.Get(0).(*extractor.Info)
	return info, args.String(1), args.Error(2)
}

func TestDownloadInstagramFallbackTransfersResolvedSource(t *testing.T) {
	ext := new(MockExtractor)
	fb := new(MockFallback)
	o, _ := newTestOrchestrator(t, ext, fb)
	url := "https://www.instagram.com/reel/Cabc123/"
	mirrored := "https://ddinstagram.com/reel/Cabc123/"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(nil, errors.New("login required"))
	fb.On("Applies", models.PlatformInstagram).Return(true)
	fb.On("Resolve", mock.Anything, url, mock.Anything).Return(&extractor.Info{Title: "reel", Duration: 15}, mirrored, nil)
	ext.On("Transfer", mock.Anything, mirrored, mock.Anything).Run(writeOutput(t, 100)).Return(nil).Once()

	result := o.Download(context.Background(), url, models.QualityBest)

	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
	assert.Equal(t, "reel", result.Success.Title)
	assert.Contains(t, filepath.Base(result.Success.FilePath), "video_Cabc123_")
	ext.AssertExpectations(t)
	fb.AssertExpectations(t)
}

func TestDownloadInstagramFallbackExhausted(t *testing.T) {
	ext := new(MockExtractor)
	fb := new(MockFallback)
	o, _ := newTestOrchestrator(t, ext, fb)
	url := "https://instagram.com/p/Cxyz/"

	ext.On("Resolve", mock.Anything, url, mock.Anything).Return(nil, errors.New("login required"))
	fb.On("Applies", models.PlatformInstagram).Return(true)
	fb.On("Resolve", mock.Anything, url, mock.Anything).Return(nil, "", scrape.ErrNoMirrorMedia)

	result := o.Download(context.Background(), url, models.QualityBest)

	require.False(t, result.OK())
	assert.Equal(t, models.ReasonMetadataUnresolvable, result.Failure.Reason)
	assert.Contains(t, result.Failure.Message, "login required", "the original extractor error is reported")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := models.Config{
		DownloadDir: "dl",
		Download: models.DownloadConfig{
			MaxFileSizeMB:    50,
			MaxDurationSec:   1800,
			SocketTimeoutSec: 30,
			Retries:          5,
			FragmentRetries:  5,
			TitleMaxLen:      50,
		},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "dl", opts.DownloadDir)
	assert.Equal(t, int64(50*1024*1024), opts.MaxFileSizeBytes)
	assert.Equal(t, 30*time.Minute, opts.MaxDuration)
	assert.Equal(t, 30*time.Second, opts.SocketTimeout)
	assert.Equal(t, 5, opts.Retries)
}
