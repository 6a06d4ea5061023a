// Package messages holds every user-facing string the bot sends.
package messages

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"go-video-bot/internal/helpers"
	"go-video-bot/internal/models"
)

// MaxErrorDetail bounds raw error text echoed back to users.
const MaxErrorDetail = 100

const (
	DefaultTitle    = "فيديو"
	DefaultUploader = "غير معروف"
	NoUsername      = "بدون يوزر"

	FileNotFound   = "❌ لم يتم العثور على الملف بعد التحميل"
	EmptyFile      = "❌ الملف المحمل فارغ، قد يكون الرابط محمي أو به مشكلة"
	EmptyTransfer  = "❌ فشل التحميل: الخادم أرسل ملفاً فارغاً. جرب رابطاً آخر."
	NoMetadata     = "❌ لا يمكن قراءة معلومات الفيديو"
	LinkExpired    = "❌ انتهت صلاحية الرابط، أرسله مرة أخرى"
	NotAuthorized  = "⛔ هذا الأمر للمشرف فقط"
	Unexpected     = "⚠️ حدث خطأ غير متوقع، حاول مرة أخرى"
	NoURL          = "❌ أرسل رابط فيديو صالح يبدأ بـ http أو https"
	Downloading    = "⏳ جاري التحميل..."
	Uploading      = "📤 جاري الرفع..."
	ChooseQuality  = "🎬 اختر جودة التحميل:"
	Cancelled      = "✅ تم الإلغاء"
	SendLink       = "📥 أرسل رابط الفيديو الآن"
	SupportPrompt  = "📝 اكتب رسالتك للدعم الفني وسنرد عليك قريباً"
	SupportSent    = "✅ تم إرسال رسالتك للدعم الفني"
	NoUsersYet     = "لا يوجد مستخدمون بعد"
	BroadcastAsk   = "📢 أرسل الرسالة التي تريد إذاعتها لجميع المستخدمين"
	ReplyUsage     = "الاستخدام: /reply &lt;user_id&gt; &lt;الرسالة&gt;"
	ReplySent      = "✅ تم إرسال الرد"
	AdminPanel     = "🛠 <b>لوحة المشرف</b>"
	ExportEmpty    = "📂 لا توجد ملفات للتصدير"
	ChannelMissing = "⚠️ لم يتم ضبط قناة"
	Exporting      = "⏳ جاري إنشاء ملف الفيديوهات..."
	ExportCaption  = "✅ ملف الفيديوهات المضغوط"
	NoStatsYet     = "📊 لا توجد إحصائيات بعد"
)

// Button labels. The main keyboard labels double as text shortcuts.
const (
	ButtonDownload  = "📥 تحميل فيديو"
	ButtonStats     = "📊 إحصائياتي"
	ButtonTop       = "🏆 المتصدرين"
	ButtonSupport   = "📬 دعم فني"
	ButtonHelp      = "❓ مساعدة"
	ButtonCancel    = "❌ إلغاء"
	ButtonClose     = "❌ إغلاق"
	ButtonAdminStat = "📊 إحصائيات"
	ButtonUsers     = "👥 قائمة المستخدمين"
	ButtonBroadcast = "📢 إذاعة رسالة"
	ButtonExport    = "💾 تصدير الفيديوهات"
	ButtonCleanup   = "🧹 تنظيف الملفات"
	ButtonChannelID = "📋 معرف القناة"
)

// Command descriptions registered with the chat platform.
const (
	CommandStart   = "🚀 بدء"
	CommandHelp    = "❓ مساعدة"
	CommandStats   = "📊 إحصائياتي"
	CommandTop     = "🏆 المتصدرين"
	CommandSupport = "📬 دعم فني"
	CommandAdmin   = "👑 لوحة التحكم"
	CommandCancel  = "❌ إلغاء"
)

// Detected introduces the quality keyboard for a recognised link.
func Detected(platformLabel string) string {
	return html.EscapeString(platformLabel) + " ✅ <b>تم اكتشاف الفيديو</b>\n\n" + ChooseQuality
}

// Broadcast wraps an operator announcement.
func Broadcast(text string) string {
	return "📢 <b>رسالة إدارية</b>\n\n" + html.EscapeString(text)
}

func BroadcastProgress(total int) string {
	return fmt.Sprintf("⏳ جاري الإرسال إلى %d مستخدم...", total)
}

// Quality labels shown on the keyboard and in captions.
var qualityLabels = map[models.QualityTier]string{
	models.QualityBest:   "🔥 أفضل جودة",
	models.QualityMedium: "📱 جودة متوسطة (720p)",
	models.QualityLow:    "💾 جودة منخفضة (480p)",
}

func QualityLabel(tier models.QualityTier) string {
	if label, ok := qualityLabels[tier]; ok {
		return label
	}
	return qualityLabels[models.QualityBest]
}

func DownloadingTier(tier models.QualityTier) string {
	return fmt.Sprintf("%s\n🎯 الجودة: %s", Downloading, QualityLabel(tier))
}

func DurationExceeded(seconds int) string {
	return fmt.Sprintf("❌ الفيديو طويل جداً (%d دقيقة)", seconds/60)
}

func TooLarge(sizeMB float64) string {
	return fmt.Sprintf("❌ الفيديو كبير جداً (%.1f MB)", sizeMB)
}

// GenericError echoes a truncated error description.
// All messages are sent as HTML, so the detail is escaped after truncation.
func GenericError(err error) string {
	return "❌ حدث خطأ: " + html.EscapeString(helpers.TruncateRunes(err.Error(), MaxErrorDetail))
}

func UploadFailed(err error) string {
	return "❌ فشل الرفع: " + html.EscapeString(helpers.TruncateRunes(err.Error(), MaxErrorDetail))
}

// Caption is the HTML caption sent with a delivered video.
func Caption(s models.DownloadSuccess, tier models.QualityTier) string {
	var b strings.Builder
	b.WriteString("✅ <b>تم التحميل بنجاح!</b>\n\n")
	fmt.Fprintf(&b, "🌐 <b>المصدر:</b> %s\n", html.EscapeString(s.PlatformLabel))
	fmt.Fprintf(&b, "📹 <b>العنوان:</b> %s\n", html.EscapeString(s.Title))
	fmt.Fprintf(&b, "⏱️ <b>المدة:</b> %s\n", helpers.FormatDuration(s.DurationSeconds))
	fmt.Fprintf(&b, "📏 <b>الحجم:</b> %.1f MB\n", s.SizeMB())
	fmt.Fprintf(&b, "🎯 <b>الجودة:</b> %s\n\n", QualityLabel(tier))
	b.WriteString("📥 أرسل رابطاً آخر للتحميل")
	return b.String()
}

func ChannelCaption(firstName string) string {
	return "📥 تم التحميل بواسطة " + html.EscapeString(firstName)
}

func Welcome(firstName string, isNew bool) string {
	if isNew {
		return fmt.Sprintf("👋 أهلاً بك %s!\n\nأرسل لي رابط فيديو من يوتيوب، انستغرام، تيك توك، تويتر أو فيسبوك وسأقوم بتحميله لك.", html.EscapeString(firstName))
	}
	return fmt.Sprintf("👋 مرحباً بعودتك %s!\n\nأرسل رابط الفيديو للتحميل.", html.EscapeString(firstName))
}

const Help = "📖 <b>طريقة الاستخدام</b>\n\n" +
	"1️⃣ انسخ رابط الفيديو\n" +
	"2️⃣ أرسله هنا\n" +
	"3️⃣ اختر الجودة\n\n" +
	"<b>المنصات المدعومة:</b> يوتيوب، انستغرام، تيك توك، تويتر/X، فيسبوك\n" +
	"<b>الحدود:</b> 50 MB و30 دقيقة كحد أقصى\n\n" +
	"/start - البداية\n/stats - إحصائياتك\n/top - أكثر المستخدمين\n/support - الدعم الفني\n/cancel - إلغاء"

func UserStats(u models.UserRecord) string {
	return fmt.Sprintf("📊 <b>إحصائياتك</b>\n\n📥 التحميلات: %d\n💾 الحجم الكلي: %.1f MB\n📅 تاريخ الانضمام: %s",
		u.Downloads, u.TotalSizeMB, u.Joined.Format("2006-01-02"))
}

func GlobalStats(s models.Stats) string {
	return fmt.Sprintf("📊 <b>إحصائيات البوت</b>\n\n👥 المستخدمون: %d\n📥 التحميلات: %d\n💾 الحجم الكلي: %.1f MB",
		s.TotalUsers, s.TotalDownloads, s.TotalSizeMB)
}

var medals = []string{"🥇", "🥈", "🥉"}

// Leaderboard renders the top users list.
func Leaderboard(users []models.UserRecord) string {
	if len(users) == 0 {
		return NoUsersYet
	}
	var b strings.Builder
	b.WriteString("🏆 <b>أكثر المستخدمين تحميلاً</b>\n\n")
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fmt.Fprintf(&b, "%s %s - %d تحميل\n", rank, html.EscapeString(u.FirstName), u.Downloads)
	}
	return b.String()
}

// UserList renders the admin view of users. Whole lines are dropped once
// the text would exceed limit runes so no HTML tag is cut in half.
func UserList(users []models.UserRecord, limit int) string {
	if len(users) == 0 {
		return NoUsersYet
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>المستخدمون (%d)</b>\n\n", len(users))
	length := utf8.RuneCountInString(b.String())
	for _, u := range users {
		username := NoUsername
		if u.Username != "" {
			username = "@" + u.Username
		}
		line := fmt.Sprintf("• %s (%s) <code>%d</code> - %d\n", html.EscapeString(u.FirstName), html.EscapeString(username), u.ID, u.Downloads)
		n := utf8.RuneCountInString(line)
		if limit > 0 && length+n > limit {
			break
		}
		b.WriteString(line)
		length += n
	}
	return b.String()
}

func SupportForward(u models.Requester, text string) string {
	username := NoUsername
	if u.Username != "" {
		username = "@" + u.Username
	}
	return fmt.Sprintf("📩 <b>رسالة دعم جديدة</b>\n\n👤 %s (%s)\n🆔 <code>%d</code>\n\n%s\n\nللرد: /reply %d &lt;الرسالة&gt;",
		html.EscapeString(u.FirstName), html.EscapeString(username), u.UserID, html.EscapeString(text), u.UserID)
}

func SupportReply(text string) string {
	return "💬 <b>رد الدعم الفني:</b>\n\n" + html.EscapeString(text)
}

func BroadcastReport(sent, total int) string {
	return fmt.Sprintf("✅ تم إرسال الرسالة إلى %d/%d مستخدم", sent, total)
}

func CleanupReport(removed int) string {
	return fmt.Sprintf("🧹 تم حذف %d ملف", removed)
}

func ChannelInfo(channelID string) string {
	return fmt.Sprintf("📡 القناة الحالية: <code>%s</code>", html.EscapeString(channelID))
}
