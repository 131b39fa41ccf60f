package bot

// Тексты сообщений пользователям.
const (
	msgAskAppPassword = "Thanks for the follow-up 😀.\n" +
		"Please send your app password to this chat (DM).\n" +
		"The password you give us will be encrypted and stored securely,\n" +
		"and will only be used to provide the functionality of this bot."

	msgSignupCompleted = "Your App Password has been received and your user registration has been completed 🥳.\n\n" +
		"Next, please submit a watermark image with the Alt of '" + AltSetWatermark + "'.\n" +
		"If you successfully received the password, this bot will notify you by DM.\n\n" +
		"You can re-register your watermark image as many times as you like!"

	msgWatermarkReceived = "Your watermark image has been received. " +
		"From now on, images you post will be replaced with watermarked images. " +
		"Add the Alt '" + AltSkipWatermarking + "' to an image to skip watermarking."

	msgSignedOut = "You have unfollowed this bot, so your registration has been removed.\n" +
		"Your app password and watermark image have been deleted.\n" +
		"Follow again any time to sign up again."
)
