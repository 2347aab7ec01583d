package app

import (
	"fmt"
	"strconv"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れ認証コードの定期削除を行うワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションを実行する。
	// サブ引数 up（既定）、down [n]、version を受け付ける。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthを叩いて終了コードで結果を返す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	// Migrate とSteps はCommandMigrateの場合のみ意味を持つ。
	Migrate MigrateAction
	Steps   int
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。未知のサブコマンドはエラー。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	switch cmd := Command(strings.ToLower(args[0])); cmd {
	case CommandServe, CommandWorker, CommandHealthcheck:
		return Invocation{Command: cmd}, nil
	case CommandMigrate:
		return parseMigrate(args[1:])
	default:
		return Invocation{}, fmt.Errorf("unknown command %q (want serve, worker, migrate or healthcheck)", args[0])
	}
}

func parseMigrate(args []string) (Invocation, error) {
	inv := Invocation{Command: CommandMigrate, Migrate: MigrateUp}
	if len(args) == 0 {
		return inv, nil
	}

	switch action := MigrateAction(strings.ToLower(args[0])); action {
	case MigrateUp, MigrateVersion:
		inv.Migrate = action
	case MigrateDown:
		inv.Migrate = MigrateDown
		inv.Steps = 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return Invocation{}, fmt.Errorf("migrate down: invalid step count %q", args[1])
			}
			inv.Steps = n
		}
	default:
		return Invocation{}, fmt.Errorf("unknown migrate action %q (want up, down or version)", args[0])
	}
	return inv, nil
}
