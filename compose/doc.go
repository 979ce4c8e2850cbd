// Package compose 提供可执行对象的编排能力。
//
// 核心抽象是 Runnable：支持 Invoke、Stream、Collect、Transform
// 四种数据流模式的可执行对象。Sequence 把步骤串联为顺序链，
// Parallel 把带键名的分支组织为并发执行，二者编译后都得到 Runnable，
// 因此可以任意嵌套组合。
//
// 步骤来源包括 Lambda 包装的用户函数、聊天模板、聊天模型和消息
// 解析器。步骤只需实现四种模式之一，其余模式由框架自动适配。
package compose
