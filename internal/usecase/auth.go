package usecase

import (
	"github.com/totegamma/bookshelf"
	"github.com/totegamma/bookshelf/internal/domain"
)

// IsAuthor reports whether the active account is the registry's author.
// It is false until both identities are known.
func IsAuthor(activeAccount, authorAddress string) bool {
	if activeAccount == "" || authorAddress == "" {
		return false
	}
	return bookshelf.SameAddress(activeAccount, authorAddress)
}

// CanPurchase decides whether a Buy action is offered for a book.
func CanPurchase(status domain.BookStatus, activeAccount, authorAddress string) bool {
	if status != domain.StatusAvailable || activeAccount == "" {
		return false
	}
	return !bookshelf.SameAddress(activeAccount, authorAddress)
}

func SelectView(activeAccount, authorAddress string) domain.View {
	switch {
	case activeAccount == "":
		return domain.ViewDisconnected
	case IsAuthor(activeAccount, authorAddress):
		return domain.ViewAuthor
	default:
		return domain.ViewBuyer
	}
}

func SessionState(activeAccount, authorAddress, contract string) domain.SessionState {
	return domain.SessionState{
		ActiveAccount: activeAccount,
		AuthorAddress: authorAddress,
		Contract:      contract,
		IsAuthor:      IsAuthor(activeAccount, authorAddress),
		View:          SelectView(activeAccount, authorAddress),
	}
}
