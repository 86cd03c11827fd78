package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"stataggg-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"go.mongodb.org/mongo-driver/bson"
)

func main() {
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB (defaults to BADGER_FILEPATH)")
	// msgid: index entries only point back at msg: keys
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	colours := flag.Bool("colours", true, "Highlight admins and edited messages")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "ID", "Time", "Author", "Flags", "Reply", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			err := item.Value(func(v []byte) error {
				var m repositories.DiskMessage
				if err := bson.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
					return nil
				}
				table.Append(row(rawKey, m, *colours))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d record(s) under %q\n", rows, *prefix)
}

func row(key string, m repositories.DiskMessage, colours bool) []string {
	author := m.AuthorName
	var flags []string
	if m.AuthorAdmin {
		flags = append(flags, "admin")
		if colours {
			author = color.New(color.FgRed, color.OpBold).Render(author)
		}
	}
	if m.AuthorPremium {
		flags = append(flags, "premium")
	}
	if m.Edited {
		flags = append(flags, "edited")
	}

	reply := ""
	if m.ReplyToID != nil {
		reply = strconv.FormatInt(*m.ReplyToID, 10)
	}

	content := m.Content
	if len([]rune(content)) > 60 {
		content = string([]rune(content)[:60]) + "…"
	}

	return []string{
		key,
		strconv.FormatInt(m.ID, 10),
		time.Unix(0, m.CreatedAt).Format("2006-01-02 15:04:05"),
		author,
		strings.Join(flags, ","),
		reply,
		content,
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
