package bot

import "runtime/debug"

const apology = "Sorry, something went wrong on my side. Please try again."

func (b *Bot) withRecovery(chatID int64, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			countUpdate("panic")
			b.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int64("chat_id", chatID).
				Msg("Recovered from panic in update handler")
			b.sendMessage(chatID, apology)
		}
	}()
	handler()
}
