package locales

import (
	"encoding/json"
	"testing"

	"gatedrop-bot/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizerRendersTemplates(t *testing.T) {
	b, err := New("en", logger.Discard())
	require.NoError(t, err)

	l := b.Localizer("de")
	assert.Equal(t, "Invalid link!", l.Get(MsgInvalidLink, nil))
	assert.Equal(t, "Join Channel 2", l.Get(MsgJoinChannelButton, map[string]interface{}{"Index": 2}))
}

func TestUnknownMessageFallsBackToID(t *testing.T) {
	b, err := New("en", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "MsgMissing", b.Localizer().Get("MsgMissing", nil))
}

func TestBadDefaultLanguageFallsBackToEnglish(t *testing.T) {
	b, err := New("not a tag!", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "en", b.DefaultLanguage().String())
}

func TestEveryMessageIDIsTranslated(t *testing.T) {
	raw, err := localeFS.ReadFile("en.json")
	require.NoError(t, err)
	var messages map[string]string
	require.NoError(t, json.Unmarshal(raw, &messages))

	ids := []string{
		MsgErrorGeneral, MsgUserStart, MsgJoinButton, MsgAdminStart, MsgInvalidLink,
		MsgMembershipRequired, MsgJoinChannelButton, MsgTryAgainButton, MsgLimitedExhausted,
		MsgBasicExhausted, MsgRenewButton, MsgPayButton, MsgBuyButton, MsgBatchAskFirst,
		MsgBatchAskLast, MsgBatchInvalidPost, MsgBatchCreated, MsgBatchFailed, MsgNoLinks,
		MsgLinkLine, MsgCurrentWebsite, MsgChangeWebsiteButton, MsgAskWebsite, MsgInvalidWebsite,
		MsgWebsiteUpdated, MsgSettings, MsgAutoTimerButton, MsgSubscriptionFunctionButton,
		MsgFreezeButton, MsgAutoTimerCurrent, MsgChangeAutoTimerButton, MsgAskAutoTimer,
		MsgAutoTimerUpdated, MsgInvalidAutoTimer, MsgSubscriptionFunction, MsgSubscriptionToggled,
		MsgToggleButton, MsgStatusOn, MsgStatusOff, MsgFreezeStats, MsgFreezeDeleteButton,
		MsgForceDeleteDone, MsgExportDone, MsgUserUsage, MsgUserDetails, MsgUserSubscription,
		MsgUserActive, MsgUserExpired, MsgUserNoSubscription, MsgUserLinksUsed, MsgUserNoUsage,
		MsgCancelSubscriptionButton, MsgCancelConfirm, MsgYesButton, MsgNoButton, MsgCancelDone,
		MsgCancelNoSubscription, MsgCancelAborted, MsgUserStats, MsgPremiumUsersButton,
		MsgPremiumUserLine, MsgNoPremiumUsers, MsgLimitedActivated, MsgFullActivated, MsgUpgraded,
		MsgExpired, MsgPremiumPlan, MsgPlanLinksUsed, MsgPlanUpgradedNote, MsgBasicPlan, MsgPay,
		MsgPayPlainButton, MsgAdminHelp, MsgUserHelp, MsgBroadcastSummary,
		CmdStartDesc, CmdPlanDesc, CmdPayDesc, CmdHelpDesc,
	}
	for _, id := range ids {
		assert.Contains(t, messages, id)
	}
}
