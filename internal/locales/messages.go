package locales

// Message IDs in en.json.
const (
	MsgErrorGeneral = "MsgErrorGeneral"

	MsgUserStart  = "MsgUserStart"
	MsgJoinButton = "MsgJoinButton"
	MsgAdminStart = "MsgAdminStart"

	// Redemption
	MsgInvalidLink        = "MsgInvalidLink"
	MsgMembershipRequired = "MsgMembershipRequired"
	MsgJoinChannelButton  = "MsgJoinChannelButton"
	MsgTryAgainButton     = "MsgTryAgainButton"
	MsgLimitedExhausted   = "MsgLimitedExhausted"
	MsgBasicExhausted     = "MsgBasicExhausted"
	MsgRenewButton        = "MsgRenewButton"
	MsgPayButton          = "MsgPayButton"
	MsgBuyButton          = "MsgBuyButton"

	// Batch creation and listing
	MsgBatchAskFirst    = "MsgBatchAskFirst"
	MsgBatchAskLast     = "MsgBatchAskLast"
	MsgBatchInvalidPost = "MsgBatchInvalidPost"
	MsgBatchCreated     = "MsgBatchCreated"
	MsgBatchFailed      = "MsgBatchFailed"
	MsgNoLinks          = "MsgNoLinks"
	MsgLinkLine         = "MsgLinkLine"

	// Website
	MsgCurrentWebsite      = "MsgCurrentWebsite"
	MsgChangeWebsiteButton = "MsgChangeWebsiteButton"
	MsgAskWebsite          = "MsgAskWebsite"
	MsgInvalidWebsite      = "MsgInvalidWebsite"
	MsgWebsiteUpdated      = "MsgWebsiteUpdated"

	// Settings
	MsgSettings                   = "MsgSettings"
	MsgAutoTimerButton            = "MsgAutoTimerButton"
	MsgSubscriptionFunctionButton = "MsgSubscriptionFunctionButton"
	MsgFreezeButton               = "MsgFreezeButton"
	MsgAutoTimerCurrent           = "MsgAutoTimerCurrent"
	MsgChangeAutoTimerButton      = "MsgChangeAutoTimerButton"
	MsgAskAutoTimer               = "MsgAskAutoTimer"
	MsgAutoTimerUpdated           = "MsgAutoTimerUpdated"
	MsgInvalidAutoTimer           = "MsgInvalidAutoTimer"
	MsgSubscriptionFunction       = "MsgSubscriptionFunction"
	MsgSubscriptionToggled        = "MsgSubscriptionToggled"
	MsgToggleButton               = "MsgToggleButton"
	MsgStatusOn                   = "MsgStatusOn"
	MsgStatusOff                  = "MsgStatusOff"
	MsgFreezeStats                = "MsgFreezeStats"
	MsgFreezeDeleteButton         = "MsgFreezeDeleteButton"
	MsgForceDeleteDone            = "MsgForceDeleteDone"

	MsgExportDone = "MsgExportDone"

	// User administration
	MsgUserUsage                = "MsgUserUsage"
	MsgUserDetails              = "MsgUserDetails"
	MsgUserSubscription         = "MsgUserSubscription"
	MsgUserActive               = "MsgUserActive"
	MsgUserExpired              = "MsgUserExpired"
	MsgUserNoSubscription       = "MsgUserNoSubscription"
	MsgUserLinksUsed            = "MsgUserLinksUsed"
	MsgUserNoUsage              = "MsgUserNoUsage"
	MsgCancelSubscriptionButton = "MsgCancelSubscriptionButton"
	MsgCancelConfirm            = "MsgCancelConfirm"
	MsgYesButton                = "MsgYesButton"
	MsgNoButton                 = "MsgNoButton"
	MsgCancelDone               = "MsgCancelDone"
	MsgCancelNoSubscription     = "MsgCancelNoSubscription"
	MsgCancelAborted            = "MsgCancelAborted"
	MsgUserStats                = "MsgUserStats"
	MsgPremiumUsersButton       = "MsgPremiumUsersButton"
	MsgPremiumUserLine          = "MsgPremiumUserLine"
	MsgNoPremiumUsers           = "MsgNoPremiumUsers"

	// Subscriptions
	MsgLimitedActivated = "MsgLimitedActivated"
	MsgFullActivated    = "MsgFullActivated"
	MsgUpgraded         = "MsgUpgraded"
	MsgExpired          = "MsgExpired"
	MsgPremiumPlan      = "MsgPremiumPlan"
	MsgPlanLinksUsed    = "MsgPlanLinksUsed"
	MsgPlanUpgradedNote = "MsgPlanUpgradedNote"
	MsgBasicPlan        = "MsgBasicPlan"
	MsgPay              = "MsgPay"
	MsgPayPlainButton   = "MsgPayPlainButton"

	MsgAdminHelp = "MsgAdminHelp"
	MsgUserHelp  = "MsgUserHelp"

	MsgBroadcastSummary = "MsgBroadcastSummary"

	// Command menu descriptions
	CmdStartDesc = "CmdStartDesc"
	CmdPlanDesc  = "CmdPlanDesc"
	CmdPayDesc   = "CmdPayDesc"
	CmdHelpDesc  = "CmdHelpDesc"
)
