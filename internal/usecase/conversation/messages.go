package conversation

import (
	"fmt"
	"strings"

	"newspulse-bot/internal/domain"
)

const (
	msgWelcome           = "👋 Welcome to News93! Please enter your email to register:"
	msgInvalidEmail      = "⚠️ Please enter a valid email address."
	msgEmailTaken        = "⚠️ This email is already registered. Please enter a different email."
	msgAskPassword       = "🔑 Please set a password for website login:"
	msgPasswordTooLong   = "⚠️ Password is too long. Please use at most 72 characters."
	msgRegistrationError = "⚠️ Registration error. Please restart the process."
	msgSelectCategories  = "📂 Select your preferred categories:"
	msgSelectAtLeastOne  = "⚠️ Please select at least one category."
	msgAskTimeOnboarding = "⏰ Now, please enter your preferred time (HH:MM in 24hr):"
	msgAskTime           = "⏰ Please enter your preferred time (HH:MM in 24hr):"
	msgInvalidTime       = "⚠️ Invalid time format. Please enter in HH:MM (24hr) format."
	msgChooseDelivery    = "📬 Choose your delivery method:"
	msgDeliverySetFmt    = "✅ Registration complete!\nYour delivery method: %s"
	msgMenu              = "👋 Welcome back! What would you like to do?"
	msgUnsubscribed      = "❌ You have been unsubscribed from News93."
	msgNeedRegister      = "⚠️ You need to register first. Please use /start to begin."
	msgNoCategories      = "⚠️ You haven't selected any news categories yet. Please use /start to configure your preferences."
	msgInstantFailed     = "❌ Sorry, there was an error fetching news. Please try again later."
	msgUseButtons        = "👆 Please use the buttons above."

	answerSelectAtLeastOne = "Please select at least one category"
)

const (
	dataInstantNews      = "instant_news"
	dataChangeCategories = "change_categories"
	dataChangeSchedule   = "change_schedule"
	dataChangeDelivery   = "change_delivery"
	dataUnsubscribe      = "unsubscribe"
	dataDoneCategories   = "done_categories"
	prefixToggle         = "toggle_"
	prefixDelivery       = "delivery_"
)

func menuKeyboard() domain.Keyboard {
	return domain.Keyboard{
		{{Text: "📰 Get Instant News", Data: dataInstantNews}},
		{{Text: "📂 Change Categories", Data: dataChangeCategories}},
		{{Text: "⏰ Change Schedule Time", Data: dataChangeSchedule}},
		{{Text: "📬 Change Delivery Method", Data: dataChangeDelivery}},
		{{Text: "❌ Unsubscribe", Data: dataUnsubscribe}},
	}
}

// categoryKeyboard строит клавиатуру категорий, отмечая выбранные.
func categoryKeyboard(sess domain.ChatSession) domain.Keyboard {
	kb := make(domain.Keyboard, 0, len(domain.Categories)+1)
	for _, c := range domain.Categories {
		label := c
		if sess.HasPendingCategory(c) {
			label = "✅ " + c
		}
		kb = append(kb, []domain.Button{{Text: label, Data: prefixToggle + c}})
	}
	return append(kb, []domain.Button{{Text: "✅ Done", Data: dataDoneCategories}})
}

func deliveryKeyboard() domain.Keyboard {
	return domain.Keyboard{
		{{Text: "💬 Telegram", Data: prefixDelivery + string(domain.DeliveryTelegram)}},
		{{Text: "📧 Email", Data: prefixDelivery + string(domain.DeliveryEmail)}},
		{{Text: "🔔 Both", Data: prefixDelivery + string(domain.DeliveryBoth)}},
	}
}

func deliverySetText(m domain.DeliveryMethod) string {
	return fmt.Sprintf(msgDeliverySetFmt, m)
}

// HelpText возвращает справку по командам бота.
func HelpText() string {
	var b strings.Builder
	b.WriteString("🤖 News93 Bot Commands\n\n")
	b.WriteString("/start - Register or manage your account\n")
	b.WriteString("/news - Get instant news from your selected categories\n")
	b.WriteString("/help - Show this help message\n\n")
	b.WriteString("Features:\n")
	b.WriteString("• 📰 Get personalized news based on your interests\n")
	b.WriteString("• ⏰ Scheduled daily news delivery\n")
	b.WriteString("• 🔔 Multiple delivery methods (Telegram, Email, Both)\n")
	b.WriteString("• 📂 Customizable news categories\n\n")
	b.WriteString("Categories available:\n")
	for _, c := range domain.Categories {
		b.WriteString("• " + c + "\n")
	}
	b.WriteString("\nNeed help? Contact support or use /start to configure your preferences.")
	return b.String()
}
