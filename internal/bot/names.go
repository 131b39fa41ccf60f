package bot

// Имена worker'ов.
const (
	NameTouchUserFile        = "touch-user-file"
	NameFollowBack           = "follow-back"
	NameSendDM               = "send-dm"
	NameSignupExecutor       = "signup-executor"
	NameGetPendingSignups    = "get-pending-signups"
	NameNotifySignup         = "notify-signup"
	NameIngestAndStore       = "ingest-and-store"
	NameNotifyWatermarkImage = "notify-watermark-image"
	NameFetchOriginalImage   = "fetch-original-image"
	NameApplyWatermark       = "apply-watermark"
	NamePublishResult        = "publish-result"
	NameDeleteOriginalPost   = "delete-original-post-record"
	NameSignoutDiscovery     = "signout-discovery"
	NameDeleteUserFiles      = "delete-user-files"
	NameDeleteWatermarks     = "delete-watermarks"
	NameSendUnfollowDM       = "send-unfollow-dm"
)

// Логические имена bucket'ов.
const (
	BucketOriginals   = "original-imgs"
	BucketWatermarks  = "watermarks"
	BucketWatermarked = "watermarked-imgs"
	BucketUserInfo    = "userinfo-files"
)

// Имена очередей.
const (
	QueueFollowed        = "followed"
	QueueSetWatermarkImg = "set-watermark-img"
	QueueWatermarking    = "watermarking"
	QueueSignout         = "signout"
)

// Alt-тексты изображений, управляющие ботом.
const (
	// AltSetWatermark помечает изображение водяного знака.
	AltSetWatermark = "fr"

	// AltSkipWatermarking отключает водяной знак для поста.
	AltSkipWatermarking = "nofr"
)
