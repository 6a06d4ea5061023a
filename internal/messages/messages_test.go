package messages

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go-video-bot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCaption(t *testing.T) {
	caption := Caption(models.DownloadSuccess{
		Title:           "Tom & <Jerry>",
		PlatformLabel:   "📺 يوتيوب",
		DurationSeconds: 125,
		SizeBytes:       30 * 1024 * 1024,
	}, models.QualityMedium)

	assert.Contains(t, caption, "2:05")
	assert.Contains(t, caption, "30.0 MB")
	assert.Contains(t, caption, "📺 يوتيوب")
	assert.Contains(t, caption, QualityLabel(models.QualityMedium))
	assert.Contains(t, caption, "Tom &amp; &lt;Jerry&gt;")
}

func TestQualityLabelUnknownTierFallsBackToBest(t *testing.T) {
	assert.Equal(t, QualityLabel(models.QualityBest), QualityLabel("ultra"))
}

func TestErrorMessagesAreTruncatedAndEscaped(t *testing.T) {
	long := errors.New(strings.Repeat("a", 150) + "<tail>")
	msg := GenericError(long)
	assert.NotContains(t, msg, "tail")
	assert.Equal(t, MaxErrorDetail, strings.Count(msg, "a"))

	msg = UploadFailed(errors.New("bad <gateway>"))
	assert.Contains(t, msg, "bad &lt;gateway&gt;")
}

func TestLeaderboard(t *testing.T) {
	assert.Equal(t, NoUsersYet, Leaderboard(nil))

	board := Leaderboard([]models.UserRecord{
		{FirstName: "A", Downloads: 5},
		{FirstName: "B", Downloads: 5},
		{FirstName: "C", Downloads: 2},
		{FirstName: "D", Downloads: 1},
	})
	lines := strings.Split(strings.TrimSpace(board), "\n")
	assert.True(t, strings.HasPrefix(lines[2], "🥇 A"))
	assert.True(t, strings.HasPrefix(lines[3], "🥈 B"))
	assert.True(t, strings.HasPrefix(lines[4], "🥉 C"))
	assert.True(t, strings.HasPrefix(lines[5], "4. D"))
}

func TestUserListKeepsWholeLines(t *testing.T) {
	var users []models.UserRecord
	for i := 0; i < 200; i++ {
		users = append(users, models.UserRecord{ID: int64(i), FirstName: "user", Joined: time.Now()})
	}
	list := UserList(users, 500)
	assert.LessOrEqual(t, utf8.RuneCountInString(list), 500)
	assert.True(t, strings.HasSuffix(list, "\n"))
	assert.Equal(t, strings.Count(list, "<code>"), strings.Count(list, "</code>"))
	assert.Contains(t, list, NoUsername)
}

func TestSupportForwardEscapesUserText(t *testing.T) {
	msg := SupportForward(models.Requester{UserID: 7, FirstName: "<x>", Username: "bob"}, "a < b")
	assert.Contains(t, msg, "&lt;x&gt;")
	assert.Contains(t, msg, "@bob")
	assert.Contains(t, msg, "a &lt; b")
	assert.Contains(t, msg, "/reply 7")
}

func TestWelcome(t *testing.T) {
	assert.NotEqual(t, Welcome("Sam", true), Welcome("Sam", false))
	assert.Contains(t, Welcome("Sam", false), "Sam")
}
