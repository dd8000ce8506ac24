// Command byteguardctl is a thin command-line front end over
// internal/client, for exercising register/login/upload/share/receive
// without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sansi-28/byteguard/internal/client"
	"github.com/Sansi-28/byteguard/internal/keystore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "register":
		runRegister(args)
	case "login":
		runLogin(args)
	case "upload":
		runUpload(args)
	case "download":
		runDownload(args)
	case "share":
		runShare(args)
	case "receive":
		runReceive(args)
	case "create-group":
		runCreateGroup(args)
	case "add-group-member":
		runAddGroupMember(args)
	case "group-share":
		runGroupShare(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: byteguardctl <register|login|upload|download|share|receive|create-group|add-group-member|group-share> [flags]")
}

func commonFlags(fs *flag.FlagSet) (*string, *string) {
	server := fs.String("server", "http://localhost:8080", "server base URL")
	keystorePath := fs.String("keystore", "./byteguardctl-keystore.db", "local keystore path")
	return server, keystorePath
}

func openClient(server, keystorePath, researcherID string) (*client.Client, *keystore.Keystore) {
	if err := os.MkdirAll(filepath.Dir(keystorePath), 0700); err != nil {
		fail("create keystore dir", err)
	}
	ks, err := keystore.Open(keystorePath)
	if err != nil {
		fail("open keystore", err)
	}
	c := client.New(server, ks)
	_ = researcherID
	return c, ks
}

func fail(action string, err error) {
	fmt.Fprintf(os.Stderr, "byteguardctl: %s: %v\n", action, err)
	os.Exit(1)
}

func runRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Register(context.Background(), *researcherID, *password); err != nil {
		fail("register", err)
	}
	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login after register", err)
	}
	fmt.Println("registered and logged in as", *researcherID)
}

func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}
	fmt.Println("logged in as", *researcherID)
}

func runUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	path := fs.String("file", "", "path to the file to upload")
	contentType := fs.String("content-type", "application/octet-stream", "declared content type")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		fail("read file", err)
	}

	result, err := c.Upload(context.Background(), filepath.Base(*path), *contentType, data)
	if err != nil {
		fail("upload", err)
	}
	fmt.Println("uploaded file id", result.FileID)
}

func runDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	fileID := fs.Int64("file-id", 0, "file id to download")
	out := fs.String("out", "", "output path")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	plaintext, err := c.Download(context.Background(), *fileID)
	if err != nil {
		fail("download", err)
	}
	if err := os.WriteFile(*out, plaintext, 0600); err != nil {
		fail("write output", err)
	}
	fmt.Println("wrote", *out)
}

func runShare(args []string) {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	fileID := fs.Int64("file-id", 0, "file id to share")
	recipient := fs.String("to", "", "recipient researcher id")
	permission := fs.String("permission", "download", "view|download|full")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	result, err := c.ShareDirect(context.Background(), *fileID, *recipient, *permission)
	if err != nil {
		fail("share", err)
	}
	fmt.Println("share code:", result.ShareCode)
}

func runReceive(args []string) {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	code := fs.String("code", "", "share code")
	out := fs.String("out", "", "output path")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	result, err := c.Receive(context.Background(), *code)
	if err != nil {
		fail("receive", err)
	}
	if err := os.WriteFile(*out, result.Plaintext, 0600); err != nil {
		fail("write output", err)
	}
	fmt.Println("wrote", *out, "(", result.DisplayName, result.ContentType, ")")
}

func runCreateGroup(args []string) {
	fs := flag.NewFlagSet("create-group", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	name := fs.String("name", "", "group name")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	group, err := c.CreateGroup(context.Background(), *name)
	if err != nil {
		fail("create group", err)
	}
	fmt.Println("created group", group.ID)
}

func runAddGroupMember(args []string) {
	fs := flag.NewFlagSet("add-group-member", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	groupID := fs.String("group-id", "", "group id")
	member := fs.String("member", "", "researcher id to add")
	role := fs.String("role", "member", "member|admin|owner")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	if err := c.AddGroupMember(context.Background(), *groupID, *member, *role); err != nil {
		fail("add group member", err)
	}
	fmt.Println("added", *member, "to group", *groupID)
}

func runGroupShare(args []string) {
	fs := flag.NewFlagSet("group-share", flag.ExitOnError)
	server, keystorePath := commonFlags(fs)
	researcherID := fs.String("id", "", "researcher id")
	password := fs.String("password", "", "password")
	fileID := fs.Int64("file-id", 0, "file id to share")
	groupID := fs.String("group-id", "", "group id")
	members := fs.String("members", "", "comma-separated researcher ids")
	fs.Parse(args)

	c, ks := openClient(*server, *keystorePath, *researcherID)
	defer ks.Close()

	if err := c.Login(context.Background(), *researcherID, *password); err != nil {
		fail("login", err)
	}

	if err := c.ShareGroup(context.Background(), *fileID, *groupID, splitCSV(*members)); err != nil {
		fail("group share", err)
	}
	fmt.Println("shared file", *fileID, "with group", *groupID)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
