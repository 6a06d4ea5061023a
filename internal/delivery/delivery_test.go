package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-video-bot/internal/database"
	"go-video-bot/internal/downloader"
	"go-video-bot/internal/extractor"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/metrics"
	"go-video-bot/internal/models"
	"go-video-bot/internal/platform"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

func (m *MockMessenger) SendVideo(ctx context.Context, chatID int64, video Video) error {
	return m.Called(ctx, chatID, video).Error(0)
}

func (m *MockMessenger) SendVideoToChannel(ctx context.Context, channel string, video Video) error {
	return m.Called(ctx, channel, video).Error(0)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Resolve(ctx context.Context, url string, opts extractor.Options) (*extractor.Info, error) {
	args := m.Called(ctx, url, opts)
	info, _ := args.Get(0).(*extractor.Info)
	return info, args.Error(1)
}

func (m *MockExtractor) Transfer(ctx context.Context, url string, opts extractor.Options) error {
	return m.Called(ctx, url, opts).Error(0)
}

var requester = models.Requester{ChatID: 100, UserID: 100, FirstName: "Sara", Username: "sara"}

func newLedger(t *testing.T) database.Ledger {
	t.Helper()
	ledger, err := database.OpenJSON(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	_, err = ledger.Touch(requester.UserID, requester.FirstName, requester.Username)
	require.NoError(t, err)
	return ledger
}

func tempVideo(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video_x_1.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func TestDeliverFailureRepliesAndStops(t *testing.T) {
	m := new(MockMessenger)
	m.On("SendText", mock.Anything, requester.ChatID, "too long").Return(nil).Once()
	ledger := newLedger(t)

	outcome := New(m, ledger, "@channel").Deliver(context.Background(),
		models.Failed(models.ReasonDurationExceeded, "too long"), requester, models.QualityBest)

	assert.Equal(t, Outcome{Reason: models.ReasonDurationExceeded}, outcome)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "SendVideo", mock.Anything, mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "SendVideoToChannel", mock.Anything, mock.Anything, mock.Anything)

	u, err := ledger.Get(requester.UserID)
	require.NoError(t, err)
	assert.Zero(t, u.Downloads)
}

func TestDeliverMalformedResult(t *testing.T) {
	m := new(MockMessenger)
	m.On("SendText", mock.Anything, requester.ChatID, messages.Unexpected).Return(nil).Once()

	outcome := New(m, newLedger(t), "").Deliver(context.Background(), models.DownloadResult{}, requester, models.QualityBest)
	assert.False(t, outcome.Delivered)
	m.AssertExpectations(t)
}

func TestDeliverSuccessWithChannelCopy(t *testing.T) {
	path := tempVideo(t, 3*1024*1024)
	m := new(MockMessenger)
	m.On("SendVideoToChannel", mock.Anything, "@channel", mock.MatchedBy(func(v Video) bool {
		return v.Path == path && strings.Contains(v.Caption, "Sara")
	})).Return(nil).Once()
	m.On("SendVideo", mock.Anything, requester.ChatID, mock.MatchedBy(func(v Video) bool {
		return v.Path == path && v.DurationSeconds == 61
	})).Return(nil).Once()
	ledger := newLedger(t)

	result := models.Succeeded(models.DownloadSuccess{FilePath: path, Title: "t", DurationSeconds: 61, SizeBytes: 3 * 1024 * 1024})
	outcome := New(m, ledger, "@channel").Deliver(context.Background(), result, requester, models.QualityLow)

	assert.True(t, outcome.Delivered)
	m.AssertExpectations(t)
	assert.NoFileExists(t, path)

	u, err := ledger.Get(requester.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Downloads)
	assert.InDelta(t, 3.0, u.TotalSizeMB, 0.001)
}

func TestDeliverChannelFailureIsSwallowed(t *testing.T) {
	path := tempVideo(t, 1024)
	m := new(MockMessenger)
	m.On("SendVideoToChannel", mock.Anything, "@channel", mock.Anything).Return(errors.New("chat not found")).Once()
	m.On("SendVideo", mock.Anything, requester.ChatID, mock.Anything).Return(nil).Once()

	before := testutil.ToFloat64(metrics.BroadcastFailuresTotal)
	outcome := New(m, newLedger(t), "@channel").Deliver(context.Background(),
		models.Succeeded(models.DownloadSuccess{FilePath: path, SizeBytes: 1024}), requester, models.QualityBest)

	assert.True(t, outcome.Delivered)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BroadcastFailuresTotal))
	assert.NoFileExists(t, path)
	m.AssertExpectations(t)
}

func TestDeliverUploadFailure(t *testing.T) {
	path := tempVideo(t, 1024)
	uploadErr := errors.New("Request Entity Too Large")
	m := new(MockMessenger)
	m.On("SendVideo", mock.Anything, requester.ChatID, mock.Anything).Return(uploadErr).Once()
	m.On("SendText", mock.Anything, requester.ChatID, messages.UploadFailed(uploadErr)).Return(nil).Once()

	outcome := New(m, newLedger(t), "").Deliver(context.Background(),
		models.Succeeded(models.DownloadSuccess{FilePath: path, SizeBytes: 1024}), requester, models.QualityBest)

	assert.Equal(t, Outcome{Reason: models.ReasonUploadFailed}, outcome)
	assert.NoFileExists(t, path, "the file is removed on the failure path too")
	m.AssertNotCalled(t, "SendVideoToChannel", mock.Anything, mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestDeliverFileAlreadyGone(t *testing.T) {
	m := new(MockMessenger)
	m.On("SendVideo", mock.Anything, requester.ChatID, mock.Anything).Return(nil).Once()

	missing := filepath.Join(t.TempDir(), "gone.mp4")
	outcome := New(m, newLedger(t), "").Deliver(context.Background(),
		models.Succeeded(models.DownloadSuccess{FilePath: missing, SizeBytes: 10}), requester, models.QualityBest)
	assert.True(t, outcome.Delivered)
}

func TestFromConfigIgnoresPlaceholderChannel(t *testing.T) {
	w := FromConfig(models.Config{ChannelID: "@your_channel_username"}, new(MockMessenger), newLedger(t))
	assert.Empty(t, w.channelID)

	w = FromConfig(models.Config{ChannelID: "@videos"}, new(MockMessenger), newLedger(t))
	assert.Equal(t, "@videos", w.channelID)
}

func TestHandleEndToEnd(t *testing.T) {
	const size = 30 * 1024 * 1024
	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	dir := t.TempDir()

	ext := new(MockExtractor)
	ext.On("Resolve", mock.Anything, url, mock.Anything).
		Return(&extractor.Info{Title: "Never Gonna Give You Up", Uploader: "Rick", Duration: 120}, nil).Once()
	ext.On("Transfer", mock.Anything, url, mock.MatchedBy(func(o extractor.Options) bool {
		return o.Format == downloader.FormatMedium
	})).Run(func(args mock.Arguments) {
		opts := args.Get(2).(extractor.Options)
		f, err := os.Create(strings.Replace(opts.OutputTemplate, "%(ext)s", "mp4", 1))
		require.NoError(t, err)
		require.NoError(t, f.Truncate(size))
		require.NoError(t, f.Close())
	}).Return(nil).Once()

	orch := downloader.New(downloader.Options{
		DownloadDir:      dir,
		MaxFileSizeBytes: 50 * 1024 * 1024,
		MaxDuration:      30 * time.Minute,
	}, ext)

	var caption string
	m := new(MockMessenger)
	m.On("SendVideo", mock.Anything, requester.ChatID, mock.Anything).Run(func(args mock.Arguments) {
		caption = args.Get(2).(Video).Caption
	}).Return(nil).Once()

	ledger := newLedger(t)
	req := platform.NewRequest(url, models.QualityMedium)
	okBefore := testutil.ToFloat64(metrics.DownloadsTotal.WithLabelValues(string(models.PlatformYouTube), metrics.OutcomeOK))
	bytesBefore := testutil.ToFloat64(metrics.DeliveredBytesTotal)

	outcome := New(m, ledger, "").Handle(context.Background(), orch, req, requester)

	require.True(t, outcome.Delivered)
	assert.Contains(t, caption, "2:00")
	assert.Contains(t, caption, "30.0 MB")
	assert.Contains(t, caption, messages.QualityLabel(models.QualityMedium))

	u, err := ledger.Get(requester.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Downloads)
	assert.InDelta(t, 30.0, u.TotalSizeMB, 0.001)

	stats, err := ledger.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDownloads)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the temp file is gone after delivery")

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.DownloadsTotal.WithLabelValues(string(models.PlatformYouTube), metrics.OutcomeOK)))
	assert.Equal(t, bytesBefore+size, testutil.ToFloat64(metrics.DeliveredBytesTotal))
	ext.AssertExpectations(t)
	m.AssertExpectations(t)
}
