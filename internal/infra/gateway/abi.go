package gateway

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/totegamma/bookshelf"
)

// BookShelfABI is the interface of the registry contract.
const BookShelfABI = `[
  {"type":"function","name":"author","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getAuthorBooks","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"title","type":"bytes"},
     {"name":"author_name","type":"bytes"},
     {"name":"published_date","type":"bytes"},
     {"name":"content","type":"bytes"},
     {"name":"price","type":"uint256"},
     {"name":"status","type":"uint8"},
     {"name":"purchase_counter","type":"uint256"}]}]},
  {"type":"function","name":"getPurchasedBookData","stateMutability":"view",
   "inputs":[{"name":"_bookId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"title","type":"bytes"},
     {"name":"author_name","type":"bytes"},
     {"name":"published_date","type":"bytes"},
     {"name":"content","type":"bytes"},
     {"name":"price","type":"uint256"},
     {"name":"status","type":"uint8"},
     {"name":"purchase_counter","type":"uint256"}]}]},
  {"type":"function","name":"publishBook","stateMutability":"nonpayable",
   "inputs":[
     {"name":"_title","type":"bytes"},
     {"name":"_content","type":"bytes"},
     {"name":"_author_name","type":"bytes"},
     {"name":"_published_date","type":"bytes"},
     {"name":"_purchase_counter","type":"uint256"},
     {"name":"_price","type":"uint256"},
     {"name":"_status","type":"uint8"}],
   "outputs":[]},
  {"type":"function","name":"buyBook","stateMutability":"payable",
   "inputs":[{"name":"_bookId","type":"uint256"}],
   "outputs":[]}
]`

// bookTuple mirrors the contract's Book struct for abi decoding.
type bookTuple struct {
	Title           []byte
	AuthorName      []byte
	PublishedDate   []byte
	Content         []byte
	Price           *big.Int
	Status          uint8
	PurchaseCounter *big.Int
}

func parseBookShelfABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(BookShelfABI))
}

func (b bookTuple) raw() bookshelf.RawBookRecord {
	price := new(big.Int)
	if b.Price != nil {
		price.Set(b.Price)
	}
	// counters beyond uint64 saturate; uint256 is never negative
	var counter uint64
	switch {
	case b.PurchaseCounter == nil:
	case b.PurchaseCounter.IsUint64():
		counter = b.PurchaseCounter.Uint64()
	default:
		counter = math.MaxUint64
	}
	return bookshelf.RawBookRecord{
		Title:           hexutil.Encode(b.Title),
		AuthorName:      hexutil.Encode(b.AuthorName),
		PublishedDate:   hexutil.Encode(b.PublishedDate),
		Content:         hexutil.Encode(b.Content),
		Price:           price,
		Status:          b.Status,
		PurchaseCounter: counter,
	}
}
