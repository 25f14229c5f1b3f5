package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は画面サーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandWhoami はLOANDESK_SESSIONのセッションでログイン中のユーザーを表示することを示す。
	CommandWhoami Command = "whoami"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	case "whoami":
		return CommandWhoami
	default:
		return CommandServe
	}
}
