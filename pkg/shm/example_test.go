//go:build linux

package shm_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/srediag/shmchan/pkg/shm"
)

func ExampleOpen() {
	dir, err := os.MkdirTemp("", "shmchan-example")
	if err != nil {
		fmt.Println("failed to create dir:", err)
		return
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	config := shm.DefaultConfig()
	config.Capacity = 4096
	ch, err := shm.Open(ctx, filepath.Join(dir, "example"), config)
	if err != nil {
		fmt.Println("failed to open channel:", err)
		return
	}
	defer ch.Detach()

	_ = ch.Write([]byte("hello world"))
	_ = ch.Close()
	for {
		msg, err := ch.Read()
		if err != nil {
			fmt.Println(err)
			break
		}
		fmt.Println(string(msg))
	}
	// Output:
	// hello world
	// channel is closed
}
