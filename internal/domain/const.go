package domain

const (
	// PlaceholderText stands in for a field that could not be decoded.
	PlaceholderText = "Loading..."

	// DefaultCopies is the purchase counter used when the form leaves it unset.
	DefaultCopies = 10
)

const (
	ChannelListing      = "bookshelf.listing"
	ChannelTransactions = "bookshelf.transactions"
	ChannelNotices      = "bookshelf.notices"
	ChannelSession      = "bookshelf.session"
)

const (
	NoticeConnectWallet    = "Please connect your wallet to purchase the book."
	NoticePurchaseSuccess  = "Book purchased successfully!"
	NoticePurchaseFailed   = "Purchase failed."
	NoticePublishSubmitted = "Publishing..."
	NoticePublishSuccess   = "Book published."
	NoticePublishFailed    = "Publish failed."
	NoticeListingFailed    = "Failed to load books."
	NoticeAuthorOnly       = "Only author can publish books"
)
