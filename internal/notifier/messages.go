package notifier

import (
	"fmt"
	"strings"
)

func PendingDeposit(amount, currency, network, txId string) string {
	return fmt.Sprintf(`🚀 Your deposit is on its way! ⏳
💎 Amount: %s %s
🌐 Blockchain: %s
📝 Transaction ID: %s
🔄 Currently awaiting network confirmations...
⏱️ This usually takes just a few minutes
🔔 We'll ping you the moment it's ready!`, amount, strings.ToUpper(currency), strings.ToUpper(network), txId)
}

func DepositComplete(amount, currency, network, txId string) string {
	return fmt.Sprintf(`🎉 Deposit Complete - You're All Set! ✅
💎 Amount Credited: %s %s
🌐 Blockchain: %s
📝 Transaction ID: %s
✨ Successfully confirmed and added to your balance
🚀 Your funds are now available for trading!`, amount, strings.ToUpper(currency), strings.ToUpper(network), txId)
}

func AddressAssigned(address, currency string) string {
	return fmt.Sprintf(`🚀 Your wallet address has been assigned! ✅
💎 Address: %s
💎 Currency: %s
You can now send your %s to this address.`, address, strings.ToUpper(currency), strings.ToUpper(currency))
}

func SwapApproved(amount, currency string) string {
	return fmt.Sprintf("🎉 Swap Approved! ✅\nYour swap of %s %s has been approved. And Transaction is being processed. 🚀",
		amount, strings.ToUpper(currency))
}

func SwapCompleted(amount, currency string) string {
	return fmt.Sprintf("🎉 Swap Completed! Your %s %s swap is all done. The Naira has been sent to your bank. 🚀",
		amount, strings.ToUpper(currency))
}

func PayoutOnItsWay(amount string) string {
	return fmt.Sprintf("✅ ₦%s is on its way to your bank account! 💸 It'll arrive shortly. 🚀", amount)
}

func FailedSwap(amount, currency string) string {
	return fmt.Sprintf("❌ Your swap of %s %s has failed. The crypto has been returned to your wallet. Please try again or contact support. 😔",
		amount, strings.ToUpper(currency))
}

func InsufficientBalance(amount, currency, balance string) string {
	return fmt.Sprintf("❌ Your swap of %s %s could not start. Your available balance is %s %s.",
		amount, strings.ToUpper(currency), balance, strings.ToUpper(currency))
}

func MissingBankAccount() string {
	return "🏦 We couldn't send your Naira because no bank account is on file. Please add a bank account and contact support to complete the payout."
}

func SweepRejected(amount, currency string) string {
	return fmt.Sprintf("⚠️ Your %s %s payout is delayed. Our team has been notified and will complete it shortly.",
		amount, strings.ToUpper(currency))
}

func BankAccountAdded() string {
	return "✅ Your bank account details have been successfully added!"
}
