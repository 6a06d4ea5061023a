package bot

import (
	"errors"
	"fmt"
	"strings"

	"go-video-bot/internal/messages"
	"go-video-bot/internal/models"
)

// Callback data values.
const (
	dataCancel = "cancel"

	dataMainDownload = "main_download"
	dataMainStats    = "main_stats"
	dataMainTop      = "main_top"
	dataMainSupport  = "main_support"
	dataMainHelp     = "main_help"

	dataAdminStats     = "admin_stats"
	dataAdminUsers     = "admin_users"
	dataAdminBroadcast = "admin_broadcast"
	dataAdminExport    = "admin_export"
	dataAdminCleanup   = "admin_cleanup"
	dataAdminChannelID = "admin_channel_id"

	downloadPrefix = "dl_"
)

var ErrBadCallbackData = errors.New("malformed callback data")

func mainKeyboard() Keyboard {
	return Keyboard{
		{{Text: messages.ButtonDownload, Data: dataMainDownload}},
		{{Text: messages.ButtonStats, Data: dataMainStats}, {Text: messages.ButtonTop, Data: dataMainTop}},
		{{Text: messages.ButtonSupport, Data: dataMainSupport}, {Text: messages.ButtonHelp, Data: dataMainHelp}},
	}
}

func adminKeyboard() Keyboard {
	return Keyboard{
		{{Text: messages.ButtonAdminStat, Data: dataAdminStats}},
		{{Text: messages.ButtonUsers, Data: dataAdminUsers}},
		{{Text: messages.ButtonBroadcast, Data: dataAdminBroadcast}},
		{{Text: messages.ButtonExport, Data: dataAdminExport}},
		{{Text: messages.ButtonCleanup, Data: dataAdminCleanup}},
		{{Text: messages.ButtonChannelID, Data: dataAdminChannelID}},
		{{Text: messages.ButtonClose, Data: dataCancel}},
	}
}

// qualityKeyboard offers one button per tier for the pending link requestID.
func qualityKeyboard(requestID string) Keyboard {
	kb := make(Keyboard, 0, len(models.QualityTiers)+1)
	for _, tier := range models.QualityTiers {
		kb = append(kb, []Button{{Text: messages.QualityLabel(tier), Data: downloadData(tier, requestID)}})
	}
	return append(kb, []Button{{Text: messages.ButtonCancel, Data: dataCancel}})
}

func downloadData(tier models.QualityTier, requestID string) string {
	return fmt.Sprintf("%s%s_%s", downloadPrefix, tier, requestID)
}

// parseDownloadData splits dl_<tier>_<requestID>.
func parseDownloadData(data string) (models.QualityTier, string, error) {
	rest, ok := strings.CutPrefix(data, downloadPrefix)
	if !ok {
		return "", "", ErrBadCallbackData
	}
	rawTier, requestID, ok := strings.Cut(rest, "_")
	if !ok || requestID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadCallbackData, data)
	}
	tier, known := models.ParseQualityTier(rawTier)
	if !known {
		return "", "", fmt.Errorf("%w: unknown tier %q", ErrBadCallbackData, rawTier)
	}
	return tier, requestID, nil
}

// commands is the list registered with the platform on startup.
func commands() []Command {
	return []Command{
		{Name: "start", Description: messages.CommandStart},
		{Name: "help", Description: messages.CommandHelp},
		{Name: "stats", Description: messages.CommandStats},
		{Name: "top", Description: messages.CommandTop},
		{Name: "support", Description: messages.CommandSupport},
		{Name: "admin", Description: messages.CommandAdmin},
		{Name: "cancel", Description: messages.CommandCancel},
	}
}
