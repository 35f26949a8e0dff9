package bot

import (
	"fmt"

	"golang.org/x/text/language"

	"portraitbot/internal/telegram"
)

// Callback actions carried in inline keyboard buttons.
const (
	ActionFinalize = "portrait:done"
	ActionCancel   = "portrait:cancel"
)

var replyTags = []language.Tag{
	language.English,
	language.Indonesian,
}

var replyMatcher = language.NewMatcher(replyTags)

// matchLocale maps a transport language code onto a supported reply locale.
func matchLocale(code string) string {
	if code == "" {
		return "en"
	}
	_, index, _ := replyMatcher.Match(language.Make(code))
	base, _ := replyTags[index].Base()
	return base.String()
}

var replies = map[string]map[string]string{
	"en": {
		"welcome":           "Hi! Send me up to %d photos of yourself and I will create a studio portrait from them. When you are done, press “Create portrait”.",
		"tips":              "Tips for best results:\n• use sharp, well-lit photos\n• vary the angle between shots\n• avoid sunglasses and heavy filters\nSend photos whenever you are ready.",
		"image_received":    "Got it! %d photo(s) collected. Send more, or press “Create portrait” when you are ready.",
		"already_working":   "I am already working on your portrait. Please wait for the result.",
		"too_many_images":   "That is plenty! I can use at most %d photos. Press “Create portrait” to continue.",
		"file_too_large":    "That file is too large. Please send photos up to %d MB.",
		"download_timeout":  "Downloading that photo took too long. Please try sending it again.",
		"download_failed":   "I could not download that photo. Please try sending it again.",
		"need_photos":       "Please send at least one photo first.",
		"creating":          "Creating your portrait… This can take a few minutes. I will send it here as soon as it is ready.",
		"nothing_to_cancel": "There is nothing to cancel right now.",
		"cancelled":         "Cancelled. Send me new photos whenever you like.",
		"submit_failed":     "I could not start the generation right now. Please try again with new photos later.",
		"generation_failed": "Something went wrong while creating your portrait. Please try again with new photos.",
		"result_caption":    "Here is your portrait! Send new photos any time for another one.",
		"result_ready":      "Your portrait is ready!",
		"button_finalize":   "Create portrait",
		"button_cancel":     "Cancel",
	},
	"id": {
		"welcome":           "Hai! Kirim hingga %d foto dirimu dan aku akan membuat potret studio dari foto-foto itu. Kalau sudah selesai, tekan “Buat potret”.",
		"tips":              "Tips untuk hasil terbaik:\n• gunakan foto yang tajam dan terang\n• variasikan sudut pengambilan\n• hindari kacamata hitam dan filter berat\nKirim foto kapan saja kamu siap.",
		"image_received":    "Diterima! %d foto terkumpul. Kirim lagi, atau tekan “Buat potret” kalau sudah siap.",
		"already_working":   "Aku sedang mengerjakan potretmu. Mohon tunggu hasilnya ya.",
		"too_many_images":   "Sudah cukup! Aku hanya bisa memakai maksimal %d foto. Tekan “Buat potret” untuk melanjutkan.",
		"file_too_large":    "File itu terlalu besar. Kirim foto maksimal %d MB ya.",
		"download_timeout":  "Pengunduhan foto itu terlalu lama. Coba kirim ulang ya.",
		"download_failed":   "Aku tidak bisa mengunduh foto itu. Coba kirim ulang ya.",
		"need_photos":       "Kirim minimal satu foto dulu ya.",
		"creating":          "Sedang membuat potretmu… Ini bisa memakan beberapa menit. Akan kukirim ke sini begitu selesai.",
		"nothing_to_cancel": "Tidak ada yang bisa dibatalkan saat ini.",
		"cancelled":         "Dibatalkan. Kirim foto baru kapan saja.",
		"submit_failed":     "Aku belum bisa memulai pembuatan potret sekarang. Coba lagi nanti dengan foto baru ya.",
		"generation_failed": "Terjadi kesalahan saat membuat potretmu. Coba lagi dengan foto baru ya.",
		"result_caption":    "Ini potretmu! Kirim foto baru kapan saja untuk potret berikutnya.",
		"result_ready":      "Potretmu sudah jadi!",
		"button_finalize":   "Buat potret",
		"button_cancel":     "Batal",
	},
}

func reply(locale, key string) string {
	if msgs, ok := replies[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	return replies["en"][key]
}

func replyf(locale, key string, args ...any) string {
	return fmt.Sprintf(reply(locale, key), args...)
}

// collectKeyboard returns the action buttons shown while collecting photos.
func collectKeyboard(locale string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: reply(locale, "button_finalize"), CallbackData: ActionFinalize},
				{Text: reply(locale, "button_cancel"), CallbackData: ActionCancel},
			},
		},
	}
}

// buildPrompt synthesizes the generation prompt from the collected image
// count, with the session's free-text prompt appended when present.
func buildPrompt(imageCount int, extra string) string {
	prompt := fmt.Sprintf(
		"Create a single professional studio portrait of the person shown in the %d reference photo(s). "+
			"Preserve the person's identity and facial features faithfully. "+
			"Use soft studio lighting and a neutral background.",
		imageCount,
	)
	if extra != "" {
		prompt += " " + extra
	}
	return prompt
}
